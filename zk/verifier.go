package zk

// Verifier checks an admission proof against its public signals. The check
// must be deterministic and side-effect free: the same proof and signals
// always produce the same answer, and no shared state is touched.
//
// A false result with a nil error means the proof simply does not verify. A
// non-nil error reports that the verifier itself could not run the check
// (malformed curve points, missing verifying key); callers treat both as a
// failed verification but keep the error for diagnostics.
type Verifier interface {
	Verify(proof *Proof, signals PublicSignals) (bool, error)
}

// StaticVerifier returns a fixed outcome regardless of input. It stands in
// for the real cryptographic verifier in tests.
type StaticVerifier struct {
	Result bool
	Err    error
}

// Verify implements the Verifier interface.
func (v StaticVerifier) Verify(*Proof, PublicSignals) (bool, error) {
	return v.Result, v.Err
}

// VerifierFunc adapts a plain function to the Verifier interface.
type VerifierFunc func(proof *Proof, signals PublicSignals) (bool, error)

// Verify implements the Verifier interface.
func (f VerifierFunc) Verify(proof *Proof, signals PublicSignals) (bool, error) {
	return f(proof, signals)
}
