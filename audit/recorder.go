package audit

import (
	"log/slog"
	"strconv"

	"proofpay/core/events"
	"proofpay/native/approval"
)

// Recorder bridges registry events into the audit store. It satisfies the
// events.Emitter interface so it can be fanned in next to other sinks.
// Persistence failures are logged, not propagated: the registry's state
// transition has already committed by the time the event fires.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder builds an emitter that persists approval events.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Emit implements the events.Emitter interface.
func (r *Recorder) Emit(evt *events.Event) {
	if r == nil || r.store == nil || evt == nil {
		return
	}
	attrs := evt.Attributes
	switch evt.Type {
	case approval.EventTypeApprovalAdmitted:
		expiry, err := strconv.ParseInt(attrs["expiry"], 10, 64)
		if err != nil {
			r.logger.Error("audit: malformed expiry attribute", slog.String("value", attrs["expiry"]))
			return
		}
		err = r.store.RecordAdmission(
			attrs["issuer"], attrs["sender"], attrs["recipient"], attrs["proofId"],
			attrs["minAmount"], attrs["maxAmount"], expiry,
		)
		if err != nil {
			r.logger.Error("audit: record admission", slog.Any("error", err))
		}
	case approval.EventTypeApprovalConsumed:
		err := r.store.RecordConsumption(
			attrs["issuer"], attrs["sender"], attrs["recipient"], attrs["proofId"], attrs["amount"],
		)
		if err != nil {
			r.logger.Error("audit: record consumption", slog.Any("error", err))
		}
	}
}
