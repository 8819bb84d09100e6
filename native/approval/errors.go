package approval

import "errors"

// Admission and consumption failures. Every rejection is synchronous, scoped
// to the failing call and leaves registry state untouched; retry policy
// belongs to the caller.
var (
	// ErrMalformedInput indicates the proof or public-signal vector does not
	// have the required Groth16 shape.
	ErrMalformedInput = errors.New("approval: malformed proof input")
	// ErrInconsistentPublicInputs indicates the approval fields do not match
	// the proof's public signals, or the derived identifier mismatches.
	ErrInconsistentPublicInputs = errors.New("approval: public inputs inconsistent with approval")
	// ErrInvalidApprovalData indicates the approval violates its semantic
	// constraints (null identities, inverted range, past expiry).
	ErrInvalidApprovalData = errors.New("approval: invalid approval data")
	// ErrProofAlreadyUsed indicates the proof identifier was admitted before.
	ErrProofAlreadyUsed = errors.New("approval: proof already used")
	// ErrProofVerificationFailed indicates the verifier oracle rejected the
	// proof.
	ErrProofVerificationFailed = errors.New("approval: proof verification failed")
	// ErrScalingOverflow indicates an approval amount cannot be scaled
	// without overflowing.
	ErrScalingOverflow = errors.New("approval: scaled amount overflows")
	// ErrNoApprovalFound indicates no live approval matches the requested
	// transfer.
	ErrNoApprovalFound = errors.New("approval: no matching approval")
	// ErrCallerNotIssuer rejects admissions from anyone but the configured
	// issuer.
	ErrCallerNotIssuer = errors.New("approval: caller is not the issuer")
	// ErrCallerNotToken rejects consumptions from anyone but the configured
	// token collaborator.
	ErrCallerNotToken = errors.New("approval: caller is not the token")
)
