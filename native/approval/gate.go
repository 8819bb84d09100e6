package approval

import (
	"fmt"
	"math/big"

	"proofpay/zk"
)

// Admit runs the full proof-gated admission pipeline and, on success, stores
// the approval and marks its identifier consumed. Checks run in a fixed
// order and the first failure wins; no state is written on any rejection
// path, and the verifier oracle is only consulted after every cheaper check
// has passed.
func (r *Registry) Admit(caller [20]byte, apv *Approval, proof *zk.Proof, rawSignals []*big.Int, now int64) ([32]byte, error) {
	var id [32]byte
	if r == nil {
		return id, fmt.Errorf("approval: registry not initialised")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.issuer {
		return id, ErrCallerNotIssuer
	}

	// 1. Structural shape of the proof and the signal vector.
	if apv == nil {
		return id, fmt.Errorf("%w: approval required", ErrMalformedInput)
	}
	if err := proof.Validate(); err != nil {
		return id, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	signals, err := zk.ParsePublicSignals(rawSignals)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	// 2. Cross-check the approval against the attested amounts and expiry.
	scaledMin, err := ScaleAmount(apv.MinAmount)
	if err != nil {
		return id, err
	}
	scaledMax, err := ScaleAmount(apv.MaxAmount)
	if err != nil {
		return id, err
	}
	if signals.ScaledMinAmount().Cmp(new(big.Int).SetUint64(scaledMin)) != 0 {
		return id, fmt.Errorf("%w: min amount", ErrInconsistentPublicInputs)
	}
	if signals.ScaledMaxAmount().Cmp(new(big.Int).SetUint64(scaledMax)) != 0 {
		return id, fmt.Errorf("%w: max amount", ErrInconsistentPublicInputs)
	}
	if apv.Expiry < 0 || signals.Expiry().Cmp(big.NewInt(apv.Expiry)) != 0 {
		return id, fmt.Errorf("%w: expiry", ErrInconsistentPublicInputs)
	}

	// 3. Semantic constraints on the approval itself.
	if apv.Sender == ([20]byte{}) {
		return id, fmt.Errorf("%w: sender required", ErrInvalidApprovalData)
	}
	if apv.Recipient == ([20]byte{}) {
		return id, fmt.Errorf("%w: recipient required", ErrInvalidApprovalData)
	}
	if apv.MinAmount > apv.MaxAmount {
		return id, fmt.Errorf("%w: amount range inverted", ErrInvalidApprovalData)
	}
	if apv.Expiry <= now {
		return id, fmt.Errorf("%w: approval expired", ErrInvalidApprovalData)
	}

	// 4. The identifier is derived, never trusted: it binds the approval to
	// the specific merkle root and hashed identities the proof attests.
	expected := DeriveProofID(signals.MerkleRoot(), signals.SenderHash(), signals.RecipientHash())
	if expected != apv.ProofID {
		return id, fmt.Errorf("%w: proof id", ErrInconsistentPublicInputs)
	}

	// 5. Replay.
	if _, used := r.used[apv.ProofID]; used {
		return id, ErrProofAlreadyUsed
	}

	// 6. Verifier oracle. No mutation has happened up to this point.
	ok, err := r.verifier.Verify(proof, signals)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrProofVerificationFailed, err)
	}
	if !ok {
		return id, ErrProofVerificationFailed
	}

	// 7. Commit: consumed marker, bucket insert, event. The marker goes
	// first so a partial write fails closed: a stray marker only forfeits
	// one approval, while a stored approval without its marker would
	// reopen the identifier for replay after a restart.
	stored := apv.Clone()
	key := TripletKey(r.issuer, stored.Sender, stored.Recipient)
	updated := make([]*Approval, len(r.buckets[key]), len(r.buckets[key])+1)
	copy(updated, r.buckets[key])
	updated = append(updated, stored)
	if err := r.persistUsed(stored.ProofID); err != nil {
		return id, err
	}
	if err := r.persistBucket(key, updated); err != nil {
		return id, err
	}
	r.buckets[key] = updated
	r.used[stored.ProofID] = struct{}{}

	r.emit(NewAdmittedEvent(r.issuer, stored))
	return stored.ProofID, nil
}
