package token

import (
	"math/big"
	"testing"

	"proofpay/native/approval"
	"proofpay/storage"
)

func TestStoreStatePersistsBalances(t *testing.T) {
	db := storage.NewMemDB()
	state := NewStoreState(db)
	addr := testAddress(0x11)

	acc, err := state.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("unknown account must start at zero, got %s", acc.Balance)
	}

	acc.Balance = big.NewInt(12_345)
	if err := state.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reloaded := NewStoreState(db)
	acc, err = reloaded.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if acc.Balance.Cmp(big.NewInt(12_345)) != 0 {
		t.Fatalf("reloaded balance = %s, want 12345", acc.Balance)
	}
}

func TestEngineSettlesAgainstStoreState(t *testing.T) {
	now := int64(1_000)
	engine, registry, issuer := setupEngine(t, now)
	engine.SetState(NewStoreState(storage.NewMemDB()))

	sender := testAddress(0x11)
	recipient := testAddress(0x22)
	if err := engine.Credit(sender, 2_000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	apv := &approval.Approval{Sender: sender, Recipient: recipient, MinAmount: 10, MaxAmount: 1000, Expiry: now + 1000}
	admitApproval(t, registry, issuer, apv, 1, now)

	if _, err := engine.Settle(sender, recipient, 700); err != nil {
		t.Fatalf("settle: %v", err)
	}
	balance, err := engine.BalanceOf(recipient)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if balance.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("recipient balance = %s, want 700", balance)
	}
}
