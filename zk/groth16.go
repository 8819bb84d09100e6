package zk

import (
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/frontend"
)

// signalsWitness mirrors the public-input section of the attestation circuit.
// The field order matches the PublicSignals layout exactly.
type signalsWitness struct {
	MerkleRoot      frontend.Variable `gnark:",public"`
	SenderHash      frontend.Variable `gnark:",public"`
	RecipientHash   frontend.Variable `gnark:",public"`
	ScaledMinAmount frontend.Variable `gnark:",public"`
	ScaledMaxAmount frontend.Variable `gnark:",public"`
	CurrencyHash    frontend.Variable `gnark:",public"`
	Expiry          frontend.Variable `gnark:",public"`
}

// Define satisfies frontend.Circuit so the struct can serve as a witness
// assignment. The verifier never compiles it; the constraints live in the
// prover's circuit.
func (c *signalsWitness) Define(frontend.API) error { return nil }

// Groth16Verifier verifies admission proofs against a fixed BN254 verifying
// key using gnark. It satisfies the Verifier interface.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

// NewGroth16Verifier wraps the supplied verifying key.
func NewGroth16Verifier(vk groth16.VerifyingKey) (*Groth16Verifier, error) {
	if vk == nil {
		return nil, fmt.Errorf("zk: verifying key required")
	}
	return &Groth16Verifier{vk: vk}, nil
}

// LoadVerifyingKey reads a serialised BN254 Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zk: open verifying key: %w", err)
	}
	defer func() { _ = f.Close() }()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("zk: decode verifying key: %w", err)
	}
	return vk, nil
}

// Verify rebuilds the BN254 proof from its calldata coordinates, assembles a
// public-only witness from the signal vector and runs the pairing check.
func (v *Groth16Verifier) Verify(proof *Proof, signals PublicSignals) (bool, error) {
	if v == nil || v.vk == nil {
		return false, fmt.Errorf("zk: verifier not configured")
	}
	if proof == nil {
		return false, fmt.Errorf("zk: proof required")
	}
	native, err := assembleProof(proof)
	if err != nil {
		return false, err
	}
	scalarField := ecc.BN254.ScalarField()
	assignment := &signalsWitness{}
	targets := []*frontend.Variable{
		&assignment.MerkleRoot,
		&assignment.SenderHash,
		&assignment.RecipientHash,
		&assignment.ScaledMinAmount,
		&assignment.ScaledMaxAmount,
		&assignment.CurrencyHash,
		&assignment.Expiry,
	}
	for i, sig := range signals {
		if sig == nil {
			return false, fmt.Errorf("zk: public signal %d missing", i)
		}
		if sig.Cmp(scalarField) >= 0 {
			return false, fmt.Errorf("zk: public signal %d not in scalar field", i)
		}
		*targets[i] = new(big.Int).Set(sig)
	}
	witness, err := frontend.NewWitness(assignment, scalarField, frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("zk: build public witness: %w", err)
	}
	if err := groth16.Verify(native, v.vk, witness); err != nil {
		return false, nil
	}
	return true, nil
}

// assembleProof converts the calldata coordinate layout into gnark's native
// BN254 proof representation, rejecting points that are off-curve or outside
// the prime-order subgroup.
func assembleProof(proof *Proof) (*groth16bn254.Proof, error) {
	native := &groth16bn254.Proof{}
	if err := setG1(&native.Ar, proof.A[0], proof.A[1]); err != nil {
		return nil, fmt.Errorf("zk: proof point A: %w", err)
	}
	if err := setG2(&native.Bs, proof.B[0][0], proof.B[0][1], proof.B[1][0], proof.B[1][1]); err != nil {
		return nil, fmt.Errorf("zk: proof point B: %w", err)
	}
	if err := setG1(&native.Krs, proof.C[0], proof.C[1]); err != nil {
		return nil, fmt.Errorf("zk: proof point C: %w", err)
	}
	return native, nil
}

func setG1(point *bn254.G1Affine, x, y *big.Int) error {
	if x == nil || y == nil {
		return fmt.Errorf("missing coordinate")
	}
	point.X.SetBigInt(x)
	point.Y.SetBigInt(y)
	if !point.IsOnCurve() {
		return fmt.Errorf("point not on curve")
	}
	if !point.IsInSubGroup() {
		return fmt.Errorf("point not in subgroup")
	}
	return nil
}

// setG2 takes coordinates in calldata order: the imaginary component of each
// coordinate pair comes first.
func setG2(point *bn254.G2Affine, xIm, xRe, yIm, yRe *big.Int) error {
	if xIm == nil || xRe == nil || yIm == nil || yRe == nil {
		return fmt.Errorf("missing coordinate")
	}
	point.X.A1.SetBigInt(xIm)
	point.X.A0.SetBigInt(xRe)
	point.Y.A1.SetBigInt(yIm)
	point.Y.A0.SetBigInt(yRe)
	if !point.IsOnCurve() {
		return fmt.Errorf("point not on curve")
	}
	if !point.IsInSubGroup() {
		return fmt.Errorf("point not in subgroup")
	}
	return nil
}
