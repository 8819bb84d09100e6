package zk

import (
	"fmt"
	"math/big"
)

// NumPublicSignals is the fixed arity of the public inputs attested by an
// admission proof.
const NumPublicSignals = 7

// Positions of the individual public signals within the ordered vector. The
// layout is fixed by the attestation circuit and must never be reordered.
const (
	SignalMerkleRoot = iota
	SignalSenderHash
	SignalRecipientHash
	SignalScaledMinAmount
	SignalScaledMaxAmount
	SignalCurrencyHash
	SignalExpiry
)

// Proof carries a Groth16 proof over BN254 in the affine calldata layout
// produced by the off-chain proving pipeline: two G1 points (A, C) and one G2
// point (B) with the imaginary component first, mirroring the EVM pairing
// precompile encoding.
type Proof struct {
	A [2]*big.Int
	B [2][2]*big.Int
	C [2]*big.Int
}

// ParseProof validates the raw point coordinates and assembles a Proof. The
// slices must contain exactly the Groth16 shape: len(a)==2, len(b)==2 with two
// coordinates each, len(c)==2, and no nil entries.
func ParseProof(a []*big.Int, b [][]*big.Int, c []*big.Int) (*Proof, error) {
	if len(a) != 2 || len(b) != 2 || len(c) != 2 {
		return nil, fmt.Errorf("zk: proof must carry 2 A, 2x2 B and 2 C coordinates")
	}
	proof := &Proof{}
	for i, coord := range a {
		if coord == nil {
			return nil, fmt.Errorf("zk: proof A[%d] missing", i)
		}
		proof.A[i] = new(big.Int).Set(coord)
	}
	for i, row := range b {
		if len(row) != 2 {
			return nil, fmt.Errorf("zk: proof B[%d] must carry 2 coordinates", i)
		}
		for j, coord := range row {
			if coord == nil {
				return nil, fmt.Errorf("zk: proof B[%d][%d] missing", i, j)
			}
			proof.B[i][j] = new(big.Int).Set(coord)
		}
	}
	for i, coord := range c {
		if coord == nil {
			return nil, fmt.Errorf("zk: proof C[%d] missing", i)
		}
		proof.C[i] = new(big.Int).Set(coord)
	}
	return proof, nil
}

// Validate reports whether every coordinate of the proof is present.
func (p *Proof) Validate() error {
	if p == nil {
		return fmt.Errorf("zk: proof required")
	}
	for i := range p.A {
		if p.A[i] == nil {
			return fmt.Errorf("zk: proof A[%d] missing", i)
		}
	}
	for i := range p.B {
		for j := range p.B[i] {
			if p.B[i][j] == nil {
				return fmt.Errorf("zk: proof B[%d][%d] missing", i, j)
			}
		}
	}
	for i := range p.C {
		if p.C[i] == nil {
			return fmt.Errorf("zk: proof C[%d] missing", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the proof.
func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	clone := &Proof{}
	for i := range p.A {
		if p.A[i] != nil {
			clone.A[i] = new(big.Int).Set(p.A[i])
		}
	}
	for i := range p.B {
		for j := range p.B[i] {
			if p.B[i][j] != nil {
				clone.B[i][j] = new(big.Int).Set(p.B[i][j])
			}
		}
	}
	for i := range p.C {
		if p.C[i] != nil {
			clone.C[i] = new(big.Int).Set(p.C[i])
		}
	}
	return clone
}

// PublicSignals is the ordered, fixed-length vector of field elements a proof
// attests to. Entries are always non-nil after ParsePublicSignals.
type PublicSignals [NumPublicSignals]*big.Int

// ParsePublicSignals validates the raw signal vector and returns a defensive
// copy. Exactly NumPublicSignals non-nil entries are required.
func ParsePublicSignals(raw []*big.Int) (PublicSignals, error) {
	var signals PublicSignals
	if len(raw) != NumPublicSignals {
		return signals, fmt.Errorf("zk: expected %d public signals, got %d", NumPublicSignals, len(raw))
	}
	for i, sig := range raw {
		if sig == nil {
			return signals, fmt.Errorf("zk: public signal %d missing", i)
		}
		if sig.Sign() < 0 {
			return signals, fmt.Errorf("zk: public signal %d must be non-negative", i)
		}
		if sig.BitLen() > 256 {
			return signals, fmt.Errorf("zk: public signal %d exceeds 256 bits", i)
		}
		signals[i] = new(big.Int).Set(sig)
	}
	return signals, nil
}

// MerkleRoot returns the canonicalised instruction tree root.
func (s PublicSignals) MerkleRoot() *big.Int { return s[SignalMerkleRoot] }

// SenderHash returns the hashed sender identity bound into the proof.
func (s PublicSignals) SenderHash() *big.Int { return s[SignalSenderHash] }

// RecipientHash returns the hashed recipient identity bound into the proof.
func (s PublicSignals) RecipientHash() *big.Int { return s[SignalRecipientHash] }

// ScaledMinAmount returns the scaled lower amount bound.
func (s PublicSignals) ScaledMinAmount() *big.Int { return s[SignalScaledMinAmount] }

// ScaledMaxAmount returns the scaled upper amount bound.
func (s PublicSignals) ScaledMaxAmount() *big.Int { return s[SignalScaledMaxAmount] }

// CurrencyHash returns the hashed currency designator.
func (s PublicSignals) CurrencyHash() *big.Int { return s[SignalCurrencyHash] }

// Expiry returns the absolute expiry timestamp attested by the proof.
func (s PublicSignals) Expiry() *big.Int { return s[SignalExpiry] }
