package token

import (
	"encoding/hex"
	"errors"
	"math/big"

	"proofpay/storage"
)

const accountPrefix = "token/account/"

// StoreState keeps account balances in the node's key-value store so they
// survive restarts alongside the approval buckets.
type StoreState struct {
	db storage.Database
}

// NewStoreState wraps an open database as the engine's account backend.
func NewStoreState(db storage.Database) *StoreState {
	return &StoreState{db: db}
}

func accountKey(addr []byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr))
}

// GetAccount loads an account, returning a zero balance for unknown addresses.
func (s *StoreState) GetAccount(addr []byte) (*Account, error) {
	raw, err := s.db.Get(accountKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &Account{Balance: big.NewInt(0)}, nil
		}
		return nil, err
	}
	return &Account{Balance: new(big.Int).SetBytes(raw)}, nil
}

// PutAccount persists the account balance.
func (s *StoreState) PutAccount(addr []byte, account *Account) error {
	balance := big.NewInt(0)
	if account != nil && account.Balance != nil {
		balance = account.Balance
	}
	return s.db.Put(accountKey(addr), balance.Bytes())
}
