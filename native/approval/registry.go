package approval

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"proofpay/core/events"
	"proofpay/storage"
	"proofpay/zk"
)

var (
	bucketKeyPrefix = []byte("approval/bucket/")
	usedKeyPrefix   = []byte("approval/used/")
)

// Registry owns the durable mapping from (issuer, sender, recipient) triplets
// to their live approvals, plus the consumed-proof set that blocks replays.
// Admission is restricted to the configured issuer identity and consumption
// to the configured token identity; a single mutex serialises the two
// mutating operations so neither observes the other's partial state.
type Registry struct {
	mu       sync.Mutex
	issuer   [20]byte
	token    [20]byte
	verifier zk.Verifier
	emitter  events.Emitter
	store    storage.Database
	buckets  map[[32]byte][]*Approval
	used     map[[32]byte]struct{}
}

// NewRegistry constructs a registry bound to the issuer and token identities
// and the verifier oracle. State lives in memory until Bind attaches a
// durable store.
func NewRegistry(issuer, token [20]byte, verifier zk.Verifier) (*Registry, error) {
	if issuer == ([20]byte{}) {
		return nil, fmt.Errorf("approval: issuer identity required")
	}
	if token == ([20]byte{}) {
		return nil, fmt.Errorf("approval: token identity required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("approval: verifier required")
	}
	return &Registry{
		issuer:   issuer,
		token:    token,
		verifier: verifier,
		emitter:  events.NoopEmitter{},
		buckets:  make(map[[32]byte][]*Approval),
		used:     make(map[[32]byte]struct{}),
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Bind attaches a durable store, reloading any persisted buckets and consumed
// identifiers, and enables write-through persistence for all later mutations.
func (r *Registry) Bind(store storage.Database) error {
	if r == nil {
		return fmt.Errorf("approval: registry not initialised")
	}
	if store == nil {
		return fmt.Errorf("approval: store required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	buckets := make(map[[32]byte][]*Approval)
	var loadErr error
	err := store.Iterate(bucketKeyPrefix, func(key, value []byte) bool {
		triplet, err := decodeKeySuffix(key, bucketKeyPrefix)
		if err != nil {
			loadErr = err
			return false
		}
		bucket, err := decodeBucket(value)
		if err != nil {
			loadErr = fmt.Errorf("approval: decode bucket %x: %w", triplet, err)
			return false
		}
		buckets[triplet] = bucket
		return true
	})
	if err != nil {
		return fmt.Errorf("approval: load buckets: %w", err)
	}
	if loadErr != nil {
		return loadErr
	}

	used := make(map[[32]byte]struct{})
	err = store.Iterate(usedKeyPrefix, func(key, value []byte) bool {
		id, err := decodeKeySuffix(key, usedKeyPrefix)
		if err != nil {
			loadErr = err
			return false
		}
		used[id] = struct{}{}
		return true
	})
	if err != nil {
		return fmt.Errorf("approval: load consumed set: %w", err)
	}
	if loadErr != nil {
		return loadErr
	}

	r.store = store
	r.buckets = buckets
	r.used = used
	return nil
}

// Issuer returns the identity allowed to admit approvals.
func (r *Registry) Issuer() [20]byte {
	return r.issuer
}

// Token returns the identity allowed to consume approvals.
func (r *Registry) Token() [20]byte {
	return r.token
}

// LiveCount reports how many approvals are stored for the (sender, recipient)
// pair under this registry's issuer. Lazily expired approvals still count
// until a consumption removes them.
func (r *Registry) LiveCount(sender, recipient [20]byte) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets[TripletKey(r.issuer, sender, recipient)])
}

// TotalLive reports the number of approvals across all buckets, expired
// records included.
func (r *Registry) TotalLive() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, bucket := range r.buckets {
		total += len(bucket)
	}
	return total
}

// IsProofUsed reports membership of the consumed-proof set. Entries are never
// removed.
func (r *Registry) IsProofUsed(id [32]byte) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.used[id]
	return ok
}

// Consume locates and atomically removes the best-fit approval for the
// transfer, returning its proof identifier. Only the configured token
// identity may call it. Expired approvals are skipped; among candidates whose
// range contains the amount the narrowest range wins, first-seen breaking
// ties. Removal swaps with the last element, so bucket order carries no
// meaning beyond the tie-break at selection time.
func (r *Registry) Consume(caller, sender, recipient [20]byte, amount uint64, now int64) ([32]byte, error) {
	var id [32]byte
	if r == nil {
		return id, fmt.Errorf("approval: registry not initialised")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.token {
		return id, ErrCallerNotToken
	}

	key := TripletKey(r.issuer, sender, recipient)
	bucket := r.buckets[key]
	winner := -1
	for i, apv := range bucket {
		if !apv.Matches(amount, now) {
			continue
		}
		if winner < 0 || apv.Width() < bucket[winner].Width() {
			winner = i
		}
	}
	if winner < 0 {
		return id, ErrNoApprovalFound
	}

	matched := bucket[winner]
	updated := make([]*Approval, len(bucket))
	copy(updated, bucket)
	updated[winner] = updated[len(updated)-1]
	updated = updated[:len(updated)-1]

	if err := r.persistBucket(key, updated); err != nil {
		return id, err
	}
	if len(updated) == 0 {
		delete(r.buckets, key)
	} else {
		r.buckets[key] = updated
	}

	r.emit(NewConsumedEvent(r.issuer, sender, recipient, amount, matched.ProofID))
	return matched.ProofID, nil
}

func (r *Registry) emit(evt *events.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

// persistBucket writes the bucket through to the durable store, removing the
// key entirely when the bucket has drained. A nil store keeps the registry
// memory-only.
func (r *Registry) persistBucket(key [32]byte, bucket []*Approval) error {
	if r.store == nil {
		return nil
	}
	dbKey := storageKey(bucketKeyPrefix, key)
	if len(bucket) == 0 {
		if err := r.store.Delete(dbKey); err != nil {
			return fmt.Errorf("approval: delete bucket: %w", err)
		}
		return nil
	}
	encoded, err := encodeBucket(bucket)
	if err != nil {
		return err
	}
	if err := r.store.Put(dbKey, encoded); err != nil {
		return fmt.Errorf("approval: persist bucket: %w", err)
	}
	return nil
}

func (r *Registry) persistUsed(id [32]byte) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Put(storageKey(usedKeyPrefix, id), []byte{1}); err != nil {
		return fmt.Errorf("approval: persist consumed marker: %w", err)
	}
	return nil
}

// storedApproval is the RLP wire form of an approval. RLP only encodes
// unsigned integers, so the expiry is stored as uint64 and converted back on
// load.
type storedApproval struct {
	Sender    [20]byte
	Recipient [20]byte
	MinAmount uint64
	MaxAmount uint64
	Expiry    uint64
	ProofID   [32]byte
}

func encodeBucket(bucket []*Approval) ([]byte, error) {
	stored := make([]storedApproval, 0, len(bucket))
	for _, apv := range bucket {
		if apv == nil {
			continue
		}
		expiry := apv.Expiry
		if expiry < 0 {
			expiry = 0
		}
		stored = append(stored, storedApproval{
			Sender:    apv.Sender,
			Recipient: apv.Recipient,
			MinAmount: apv.MinAmount,
			MaxAmount: apv.MaxAmount,
			Expiry:    uint64(expiry),
			ProofID:   apv.ProofID,
		})
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return nil, fmt.Errorf("approval: encode bucket: %w", err)
	}
	return encoded, nil
}

func decodeBucket(encoded []byte) ([]*Approval, error) {
	var stored []storedApproval
	if err := rlp.DecodeBytes(encoded, &stored); err != nil {
		return nil, err
	}
	bucket := make([]*Approval, 0, len(stored))
	for _, entry := range stored {
		expiry, err := uint64ToInt64(entry.Expiry)
		if err != nil {
			return nil, fmt.Errorf("approval: expiry overflow: %w", err)
		}
		bucket = append(bucket, &Approval{
			Sender:    entry.Sender,
			Recipient: entry.Recipient,
			MinAmount: entry.MinAmount,
			MaxAmount: entry.MaxAmount,
			Expiry:    expiry,
			ProofID:   entry.ProofID,
		})
	}
	return bucket, nil
}

func storageKey(prefix []byte, suffix [32]byte) []byte {
	buf := make([]byte, len(prefix)+hex.EncodedLen(len(suffix)))
	copy(buf, prefix)
	hex.Encode(buf[len(prefix):], suffix[:])
	return buf
}

func decodeKeySuffix(key, prefix []byte) ([32]byte, error) {
	var suffix [32]byte
	raw := key[len(prefix):]
	if hex.DecodedLen(len(raw)) != len(suffix) {
		return suffix, fmt.Errorf("approval: malformed storage key %q", key)
	}
	if _, err := hex.Decode(suffix[:], raw); err != nil {
		return suffix, fmt.Errorf("approval: malformed storage key %q: %w", key, err)
	}
	return suffix, nil
}

func uint64ToInt64(value uint64) (int64, error) {
	if value > 1<<63-1 {
		return 0, fmt.Errorf("value %d exceeds int64 range", value)
	}
	return int64(value), nil
}
