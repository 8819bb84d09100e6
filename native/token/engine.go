package token

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	errNilState    = errors.New("token engine: state not configured")
	errNilRegistry = errors.New("token engine: approval registry not configured")
)

// Account holds a single balance. The engine treats balances as plain token
// units matching the approval amounts.
type Account struct {
	Balance *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}

// State abstracts the account store backing the engine.
type State interface {
	GetAccount(addr []byte) (*Account, error)
	PutAccount(addr []byte, account *Account) error
}

// ApprovalRegistry is the subset of the approval registry the engine needs:
// consuming the best-fit approval for an attempted transfer.
type ApprovalRegistry interface {
	Consume(caller, sender, recipient [20]byte, amount uint64, now int64) ([32]byte, error)
}

// Engine is the token collaborator: it settles transfers, but only after the
// approval registry consumes a matching single-use authorization. The engine
// calls the registry under its own configured identity, which must match the
// registry's token identity.
type Engine struct {
	state    State
	registry ApprovalRegistry
	identity [20]byte
	nowFn    func() int64
}

// NewEngine creates a settlement engine operating under the given identity.
func NewEngine(identity [20]byte, registry ApprovalRegistry) *Engine {
	return &Engine{
		identity: identity,
		registry: registry,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the account store used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// Credit adds freshly issued units to an account. It bypasses the approval
// registry and exists for genesis funding and tests.
func (e *Engine) Credit(addr [20]byte, amount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, new(big.Int).SetUint64(amount))
	return e.state.PutAccount(addr[:], acc)
}

// BalanceOf reports the current balance for an account.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return ensureAccount(acc).Balance, nil
}

// Settle executes an approved transfer: it verifies the sender can cover the
// amount, consumes the best-fit approval from the registry and moves the
// balance. The returned proof identifier correlates the transfer with the
// admission that authorized it. A transfer that cannot settle never burns an
// approval.
func (e *Engine) Settle(sender, recipient [20]byte, amount uint64) ([32]byte, error) {
	var id [32]byte
	if e == nil || e.state == nil {
		return id, errNilState
	}
	if e.registry == nil {
		return id, errNilRegistry
	}
	if amount == 0 {
		return id, fmt.Errorf("token: transfer amount must be positive")
	}
	fromAcc, err := e.state.GetAccount(sender[:])
	if err != nil {
		return id, err
	}
	fromAcc = ensureAccount(fromAcc)
	amt := new(big.Int).SetUint64(amount)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return id, fmt.Errorf("token: insufficient balance")
	}

	id, err = e.registry.Consume(e.identity, sender, recipient, amount, e.now())
	if err != nil {
		return id, err
	}

	// A self-transfer nets to zero; writing two independently loaded copies
	// of the same account would credit the amount twice.
	if sender == recipient {
		return id, nil
	}

	toAcc, err := e.state.GetAccount(recipient[:])
	if err != nil {
		return id, err
	}
	toAcc = ensureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(sender[:], fromAcc); err != nil {
		return id, err
	}
	if err := e.state.PutAccount(recipient[:], toAcc); err != nil {
		return id, err
	}
	return id, nil
}
