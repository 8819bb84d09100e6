package audit

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"proofpay/core/events"
	"proofpay/native/approval"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Exec("DELETE FROM entries").Error)
	})
	return store
}

func TestStoreRecordsInInsertionOrder(t *testing.T) {
	store := openTestStore(t)
	base := time.Unix(1_700_000_000, 0).UTC()
	current := base
	store.SetClock(func() time.Time { return current })

	require.NoError(t, store.RecordAdmission("aa", "11", "22", "deadbeef", "10", "1000", 9_999))
	current = base.Add(time.Second)
	require.NoError(t, store.RecordConsumption("aa", "11", "22", "deadbeef", "500"))

	entries, err := store.List(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ActionAdmitted, entries[0].Action)
	require.Equal(t, ActionConsumed, entries[1].Action)
	require.Less(t, entries[0].Sequence, entries[1].Sequence)
	require.Equal(t, "1000", entries[0].MaxAmount)
	require.Equal(t, "500", entries[1].Amount)
}

func TestStoreListWindow(t *testing.T) {
	store := openTestStore(t)
	base := time.Unix(1_700_000_000, 0).UTC()
	current := base
	store.SetClock(func() time.Time { return current })

	require.NoError(t, store.RecordConsumption("aa", "11", "22", "01", "1"))
	current = base.Add(time.Hour)
	require.NoError(t, store.RecordConsumption("aa", "11", "22", "02", "2"))

	entries, err := store.List(base.Add(30*time.Minute).Unix(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "02", entries[0].ProofID)

	entries, err = store.List(0, base.Add(30*time.Minute).Unix())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "01", entries[0].ProofID)
}

func TestStoreByProofID(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.RecordAdmission("aa", "11", "22", "cafe", "10", "1000", 9_999))
	require.NoError(t, store.RecordConsumption("aa", "11", "22", "cafe", "500"))
	require.NoError(t, store.RecordConsumption("aa", "11", "22", "beef", "7"))

	entries, err := store.ByProofID("cafe")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ActionAdmitted, entries[0].Action)
	require.Equal(t, ActionConsumed, entries[1].Action)
}

func TestStoreExportCSV(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.RecordAdmission("aa", "11", "22", "cafe", "10", "1000", 9_999))

	encoded, count, err := store.ExportCSV(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(decoded)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "proofId")
	require.Contains(t, lines[1], "cafe")
}

func TestRecorderPersistsRegistryEvents(t *testing.T) {
	store := openTestStore(t)
	recorder := NewRecorder(store, nil)

	var emitter events.Emitter = recorder
	emitter.Emit(&events.Event{
		Type: approval.EventTypeApprovalAdmitted,
		Attributes: map[string]string{
			"issuer": "aa", "sender": "11", "recipient": "22",
			"minAmount": "10", "maxAmount": "1000", "expiry": "9999",
			"proofId": "cafe",
		},
	})
	emitter.Emit(&events.Event{
		Type: approval.EventTypeApprovalConsumed,
		Attributes: map[string]string{
			"issuer": "aa", "sender": "11", "recipient": "22",
			"amount": "500", "proofId": "cafe",
		},
	})
	// Unknown event types are ignored.
	emitter.Emit(&events.Event{Type: "approval.unrelated", Attributes: map[string]string{}})

	entries, err := store.List(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(9999), entries[0].Expiry)
	require.Equal(t, "500", entries[1].Amount)
}
