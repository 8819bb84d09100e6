package approval

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Approval is a stored, one-time authorization for a transfer between a
// sender and recipient within an amount range. The identifier is derived from
// the proof's public signals, never caller-supplied trust; once admitted the
// record is immutable and is removed, not mutated, when consumed.
type Approval struct {
	Sender    [20]byte
	Recipient [20]byte
	MinAmount uint64
	MaxAmount uint64
	Expiry    int64
	ProofID   [32]byte
}

// Clone returns a copy of the approval so callers can safely hold the result
// without affecting the stored instance.
func (a *Approval) Clone() *Approval {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Matches reports whether the approval authorizes the given amount at the
// given time.
func (a *Approval) Matches(amount uint64, now int64) bool {
	if a == nil {
		return false
	}
	if a.Expiry < now {
		return false
	}
	return a.MinAmount <= amount && amount <= a.MaxAmount
}

// Width returns the size of the authorized amount range. Narrower approvals
// are preferred at consumption time.
func (a *Approval) Width() uint64 {
	if a == nil {
		return 0
	}
	return a.MaxAmount - a.MinAmount
}

// TripletKey derives the bucket key for an (issuer, sender, recipient)
// triplet as the keccak256 hash of the concatenated raw identities. Identical
// triplets always map to the same key.
func TripletKey(issuer, sender, recipient [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash(issuer[:], sender[:], recipient[:])
}

// DeriveProofID recomputes the canonical proof identifier from the merkle
// root and the hashed sender/recipient identities attested by the proof. Each
// value is packed as a 32-byte big-endian word before hashing, matching the
// off-chain pipeline's encoding.
func DeriveProofID(root, senderHash, recipientHash *big.Int) [32]byte {
	var buf [96]byte
	root.FillBytes(buf[0:32])
	senderHash.FillBytes(buf[32:64])
	recipientHash.FillBytes(buf[64:96])
	return ethcrypto.Keccak256Hash(buf[:])
}
