package approval

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"proofpay/core/events"
	"proofpay/zk"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func testProof(t *testing.T) *zk.Proof {
	t.Helper()
	proof, err := zk.ParseProof(
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		[][]*big.Int{{big.NewInt(3), big.NewInt(4)}, {big.NewInt(5), big.NewInt(6)}},
		[]*big.Int{big.NewInt(7), big.NewInt(8)},
	)
	if err != nil {
		t.Fatalf("build test proof: %v", err)
	}
	return proof
}

// signalsFor derives a consistent signal vector for the approval and stamps
// the approval's ProofID with the matching derived identifier. The root keeps
// identifiers distinct across approvals.
func signalsFor(t *testing.T, apv *Approval, root int64) []*big.Int {
	t.Helper()
	scaledMin, err := ScaleAmount(apv.MinAmount)
	if err != nil {
		t.Fatalf("scale min: %v", err)
	}
	scaledMax, err := ScaleAmount(apv.MaxAmount)
	if err != nil {
		t.Fatalf("scale max: %v", err)
	}
	rootSig := big.NewInt(root)
	senderHash := new(big.Int).SetBytes(apv.Sender[:])
	recipientHash := new(big.Int).SetBytes(apv.Recipient[:])
	apv.ProofID = DeriveProofID(rootSig, senderHash, recipientHash)
	return []*big.Int{
		rootSig,
		senderHash,
		recipientHash,
		new(big.Int).SetUint64(scaledMin),
		new(big.Int).SetUint64(scaledMax),
		big.NewInt(42),
		big.NewInt(apv.Expiry),
	}
}

func testApproval(expiry int64) *Approval {
	return &Approval{
		Sender:    testAddress(0x11),
		Recipient: testAddress(0x22),
		MinAmount: 10,
		MaxAmount: 1000,
		Expiry:    expiry,
	}
}

func newTestRegistry(t *testing.T) (*Registry, [20]byte, [20]byte) {
	t.Helper()
	issuer := testAddress(0xAA)
	token := testAddress(0xBB)
	registry, err := NewRegistry(issuer, token, zk.StaticVerifier{Result: true})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry, issuer, token
}

func TestAdmitRoundTrip(t *testing.T) {
	registry, issuer, token := newTestRegistry(t)
	recorder := &events.Recorder{}
	registry.SetEmitter(recorder)

	now := int64(1_000)
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)

	id, err := registry.Admit(issuer, apv, testProof(t), signals, now)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if id != apv.ProofID {
		t.Fatalf("admit returned %x, want %x", id, apv.ProofID)
	}
	if got := registry.LiveCount(apv.Sender, apv.Recipient); got != 1 {
		t.Fatalf("live count = %d, want 1", got)
	}
	if !registry.IsProofUsed(id) {
		t.Fatalf("proof id not marked used")
	}
	if len(recorder.Events) != 1 || recorder.Events[0].Type != EventTypeApprovalAdmitted {
		t.Fatalf("expected one admitted event, got %+v", recorder.Events)
	}

	consumedID, err := registry.Consume(token, apv.Sender, apv.Recipient, 500, now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumedID != id {
		t.Fatalf("consume returned %x, want %x", consumedID, id)
	}
	if got := registry.LiveCount(apv.Sender, apv.Recipient); got != 0 {
		t.Fatalf("live count after consume = %d, want 0", got)
	}
	if _, err := registry.Consume(token, apv.Sender, apv.Recipient, 500, now); !errors.Is(err, ErrNoApprovalFound) {
		t.Fatalf("expected ErrNoApprovalFound, got %v", err)
	}
	if len(recorder.Events) != 2 || recorder.Events[1].Type != EventTypeApprovalConsumed {
		t.Fatalf("expected consumed event, got %+v", recorder.Events)
	}
}

func TestAdmitCallerNotIssuer(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	now := int64(1_000)
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)

	if _, err := registry.Admit(testAddress(0xCC), apv, testProof(t), signals, now); !errors.Is(err, ErrCallerNotIssuer) {
		t.Fatalf("expected ErrCallerNotIssuer, got %v", err)
	}
	if registry.LiveCount(apv.Sender, apv.Recipient) != 0 {
		t.Fatalf("rejected admission must not store the approval")
	}
}

func TestAdmitMalformedInput(t *testing.T) {
	registry, issuer, _ := newTestRegistry(t)
	now := int64(1_000)
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)

	if _, err := registry.Admit(issuer, apv, nil, signals, now); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for nil proof, got %v", err)
	}
	mangled := testProof(t)
	mangled.B[1][0] = nil
	if _, err := registry.Admit(issuer, apv, mangled, signals, now); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for missing coordinate, got %v", err)
	}
	if _, err := registry.Admit(issuer, apv, testProof(t), signals[:6], now); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for short signals, got %v", err)
	}
	if _, err := registry.Admit(issuer, nil, testProof(t), signals, now); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for nil approval, got %v", err)
	}
}

func TestAdmitInconsistentPublicInputs(t *testing.T) {
	registry, issuer, _ := newTestRegistry(t)
	now := int64(1_000)

	// The oracle outcome must not matter: a consistency failure rejects even
	// when the verifier would accept, and equally when it would reject.
	for _, verdict := range []bool{true, false} {
		reg, err := NewRegistry(issuer, testAddress(0xBB), zk.StaticVerifier{Result: verdict})
		if err != nil {
			t.Fatalf("new registry: %v", err)
		}
		apv := testApproval(now + 1000)
		signals := signalsFor(t, apv, 7)

		tampered := append([]*big.Int{}, signals...)
		tampered[zk.SignalScaledMinAmount] = big.NewInt(1)
		if _, err := reg.Admit(issuer, apv, testProof(t), tampered, now); !errors.Is(err, ErrInconsistentPublicInputs) {
			t.Fatalf("expected ErrInconsistentPublicInputs for min, got %v", err)
		}

		tampered = append([]*big.Int{}, signals...)
		tampered[zk.SignalScaledMaxAmount] = big.NewInt(1)
		if _, err := reg.Admit(issuer, apv, testProof(t), tampered, now); !errors.Is(err, ErrInconsistentPublicInputs) {
			t.Fatalf("expected ErrInconsistentPublicInputs for max, got %v", err)
		}

		tampered = append([]*big.Int{}, signals...)
		tampered[zk.SignalExpiry] = big.NewInt(apv.Expiry + 1)
		if _, err := reg.Admit(issuer, apv, testProof(t), tampered, now); !errors.Is(err, ErrInconsistentPublicInputs) {
			t.Fatalf("expected ErrInconsistentPublicInputs for expiry, got %v", err)
		}
	}

	// Derived identifier mismatch.
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)
	apv.ProofID[0] ^= 0xFF
	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrInconsistentPublicInputs) {
		t.Fatalf("expected ErrInconsistentPublicInputs for id mismatch, got %v", err)
	}
}

func TestAdmitInvalidApprovalData(t *testing.T) {
	registry, issuer, _ := newTestRegistry(t)
	now := int64(1_000)

	apv := testApproval(now + 1000)
	apv.Sender = [20]byte{}
	signals := signalsFor(t, apv, 7)
	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrInvalidApprovalData) {
		t.Fatalf("expected ErrInvalidApprovalData for null sender, got %v", err)
	}

	apv = testApproval(now + 1000)
	apv.Recipient = [20]byte{}
	signals = signalsFor(t, apv, 8)
	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrInvalidApprovalData) {
		t.Fatalf("expected ErrInvalidApprovalData for null recipient, got %v", err)
	}

	apv = testApproval(now + 1000)
	apv.MinAmount = 500
	apv.MaxAmount = 100
	signals = signalsFor(t, apv, 9)
	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrInvalidApprovalData) {
		t.Fatalf("expected ErrInvalidApprovalData for inverted range, got %v", err)
	}

	apv = testApproval(now)
	signals = signalsFor(t, apv, 10)
	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrInvalidApprovalData) {
		t.Fatalf("expected ErrInvalidApprovalData for expiry at now, got %v", err)
	}
}

func TestAdmitScalingOverflow(t *testing.T) {
	registry, issuer, _ := newTestRegistry(t)
	now := int64(1_000)
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)
	apv.MinAmount = 1 << 62
	apv.MaxAmount = 1 << 63
	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrScalingOverflow) {
		t.Fatalf("expected ErrScalingOverflow, got %v", err)
	}
}

func TestAdmitReplay(t *testing.T) {
	registry, issuer, _ := newTestRegistry(t)
	now := int64(1_000)
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)

	if _, err := registry.Admit(issuer, apv, testProof(t), signals, now); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := registry.Admit(issuer, apv.Clone(), testProof(t), signals, now); !errors.Is(err, ErrProofAlreadyUsed) {
		t.Fatalf("expected ErrProofAlreadyUsed, got %v", err)
	}
	if got := registry.LiveCount(apv.Sender, apv.Recipient); got != 1 {
		t.Fatalf("replay must not grow bucket, live count = %d", got)
	}
}

func TestAdmitVerifierOutcomes(t *testing.T) {
	issuer := testAddress(0xAA)
	token := testAddress(0xBB)
	now := int64(1_000)

	rejecting, err := NewRegistry(issuer, token, zk.StaticVerifier{Result: false})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	apv := testApproval(now + 1000)
	signals := signalsFor(t, apv, 7)
	if _, err := rejecting.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrProofVerificationFailed) {
		t.Fatalf("expected ErrProofVerificationFailed, got %v", err)
	}
	if rejecting.IsProofUsed(apv.ProofID) {
		t.Fatalf("rejected proof must not enter the consumed set")
	}

	failing, err := NewRegistry(issuer, token, zk.StaticVerifier{Result: false, Err: errors.New("curve point mangled")})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := failing.Admit(issuer, apv, testProof(t), signals, now); !errors.Is(err, ErrProofVerificationFailed) {
		t.Fatalf("expected wrapped ErrProofVerificationFailed, got %v", err)
	}
}
