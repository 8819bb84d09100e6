package approval

import (
	"encoding/hex"
	"strconv"

	"proofpay/core/events"
)

const (
	EventTypeApprovalAdmitted = "approval.admitted"
	EventTypeApprovalConsumed = "approval.consumed"
)

// NewAdmittedEvent returns the canonical event payload for a freshly admitted
// approval, carrying the full approval tuple.
func NewAdmittedEvent(issuer [20]byte, apv *Approval) *events.Event {
	attrs := make(map[string]string)
	if apv != nil {
		attrs["issuer"] = hex.EncodeToString(issuer[:])
		attrs["sender"] = hex.EncodeToString(apv.Sender[:])
		attrs["recipient"] = hex.EncodeToString(apv.Recipient[:])
		attrs["minAmount"] = strconv.FormatUint(apv.MinAmount, 10)
		attrs["maxAmount"] = strconv.FormatUint(apv.MaxAmount, 10)
		attrs["expiry"] = strconv.FormatInt(apv.Expiry, 10)
		attrs["proofId"] = hex.EncodeToString(apv.ProofID[:])
	}
	return &events.Event{Type: EventTypeApprovalAdmitted, Attributes: attrs}
}

// NewConsumedEvent returns the canonical event payload emitted when a
// transfer consumes an approval.
func NewConsumedEvent(issuer, sender, recipient [20]byte, amount uint64, proofID [32]byte) *events.Event {
	attrs := map[string]string{
		"issuer":    hex.EncodeToString(issuer[:]),
		"sender":    hex.EncodeToString(sender[:]),
		"recipient": hex.EncodeToString(recipient[:]),
		"amount":    strconv.FormatUint(amount, 10),
		"proofId":   hex.EncodeToString(proofID[:]),
	}
	return &events.Event{Type: EventTypeApprovalConsumed, Attributes: attrs}
}
