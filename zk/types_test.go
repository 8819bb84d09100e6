package zk

import (
	"math/big"
	"testing"
)

func validProofSlices() ([]*big.Int, [][]*big.Int, []*big.Int) {
	a := []*big.Int{big.NewInt(1), big.NewInt(2)}
	b := [][]*big.Int{
		{big.NewInt(3), big.NewInt(4)},
		{big.NewInt(5), big.NewInt(6)},
	}
	c := []*big.Int{big.NewInt(7), big.NewInt(8)}
	return a, b, c
}

func TestParseProofShape(t *testing.T) {
	a, b, c := validProofSlices()
	proof, err := ParseProof(a, b, c)
	if err != nil {
		t.Fatalf("parse valid proof: %v", err)
	}
	if proof.A[0].Cmp(big.NewInt(1)) != 0 || proof.B[1][0].Cmp(big.NewInt(5)) != 0 || proof.C[1].Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("proof coordinates not preserved: %+v", proof)
	}

	// Mutating the inputs must not affect the parsed proof.
	a[0].SetInt64(99)
	if proof.A[0].Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("parsed proof aliases caller memory")
	}

	if _, err := ParseProof(a[:1], b, c); err == nil {
		t.Fatalf("expected error for short A vector")
	}
	if _, err := ParseProof(a, b[:1], c); err == nil {
		t.Fatalf("expected error for short B matrix")
	}
	if _, err := ParseProof(a, [][]*big.Int{{big.NewInt(1)}, {big.NewInt(2), big.NewInt(3)}}, c); err == nil {
		t.Fatalf("expected error for ragged B matrix")
	}
	if _, err := ParseProof(a, b, []*big.Int{big.NewInt(1), nil}); err == nil {
		t.Fatalf("expected error for nil C coordinate")
	}
}

func TestParsePublicSignals(t *testing.T) {
	raw := make([]*big.Int, NumPublicSignals)
	for i := range raw {
		raw[i] = big.NewInt(int64(i + 10))
	}
	signals, err := ParsePublicSignals(raw)
	if err != nil {
		t.Fatalf("parse valid signals: %v", err)
	}
	if signals.MerkleRoot().Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected merkle root: %s", signals.MerkleRoot())
	}
	if signals.Expiry().Cmp(big.NewInt(16)) != 0 {
		t.Fatalf("unexpected expiry: %s", signals.Expiry())
	}

	raw[3].SetInt64(77)
	if signals.ScaledMinAmount().Cmp(big.NewInt(13)) != 0 {
		t.Fatalf("parsed signals alias caller memory")
	}

	if _, err := ParsePublicSignals(raw[:6]); err == nil {
		t.Fatalf("expected error for short signal vector")
	}
	long := append(append([]*big.Int{}, raw...), big.NewInt(1))
	if _, err := ParsePublicSignals(long); err == nil {
		t.Fatalf("expected error for long signal vector")
	}
	raw[2] = nil
	if _, err := ParsePublicSignals(raw); err == nil {
		t.Fatalf("expected error for nil signal")
	}
	raw[2] = big.NewInt(-1)
	if _, err := ParsePublicSignals(raw); err == nil {
		t.Fatalf("expected error for negative signal")
	}
}
