package ledger

import (
	"errors"
	"fmt"
)

// Ledger is the privileged operation surface of the managed ledger.
// Every method is assumed to be authorization-gated on the ledger side
// to accept calls only from the governance engine's identity; the
// engine does not re-check that contract.
type Ledger interface {
	TransferOwnership(newOwner string) error
	Pause() error
	Unpause() error
	AddBlackList(addr string) error
	RemoveBlackList(addr string) error
	DestroyBlackFunds(addr string) error
	Deprecate(newImpl string) error
	Issue(amount uint64, to string) error
	Redeem(amount uint64) error
}

var (
	ErrNotPaused      = errors.New("ledger is not paused")
	ErrPaused         = errors.New("ledger is already paused")
	ErrNotBlacklisted = errors.New("address is not blacklisted")
)

// Call records one invocation the governance engine made against the
// ledger.
type Call struct {
	Op     string
	Target string
	Amount uint64
}

// Memory is an in-process Ledger that tracks the minimal flags the
// governed operations touch and records every call, for the CLI
// simulator and for tests. It deliberately carries no balance
// arithmetic; that bookkeeping belongs to the real ledger.
type Memory struct {
	Owner      string
	Paused     bool
	Deprecated string
	Issued     uint64
	Redeemed   uint64

	blacklist map[string]bool
	calls     []Call
}

func NewMemory(owner string) *Memory {
	return &Memory{
		Owner:     owner,
		blacklist: make(map[string]bool),
	}
}

func (m *Memory) record(op, target string, amount uint64) {
	m.calls = append(m.calls, Call{Op: op, Target: target, Amount: amount})
}

func (m *Memory) Calls() []Call {
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Memory) IsBlacklisted(addr string) bool {
	return m.blacklist[addr]
}

func (m *Memory) TransferOwnership(newOwner string) error {
	m.Owner = newOwner
	m.record("transfer_ownership", newOwner, 0)
	return nil
}

func (m *Memory) Pause() error {
	if m.Paused {
		return ErrPaused
	}
	m.Paused = true
	m.record("pause", "", 0)
	return nil
}

func (m *Memory) Unpause() error {
	if !m.Paused {
		return ErrNotPaused
	}
	m.Paused = false
	m.record("unpause", "", 0)
	return nil
}

func (m *Memory) AddBlackList(addr string) error {
	m.blacklist[addr] = true
	m.record("add_blacklist", addr, 0)
	return nil
}

func (m *Memory) RemoveBlackList(addr string) error {
	delete(m.blacklist, addr)
	m.record("remove_blacklist", addr, 0)
	return nil
}

func (m *Memory) DestroyBlackFunds(addr string) error {
	if !m.blacklist[addr] {
		return fmt.Errorf("destroying funds of %q: %w", addr, ErrNotBlacklisted)
	}
	m.record("destroy_black_funds", addr, 0)
	return nil
}

func (m *Memory) Deprecate(newImpl string) error {
	m.Deprecated = newImpl
	m.record("deprecate", newImpl, 0)
	return nil
}

func (m *Memory) Issue(amount uint64, to string) error {
	m.Issued += amount
	m.record("issue", to, amount)
	return nil
}

func (m *Memory) Redeem(amount uint64) error {
	m.Redeemed += amount
	m.record("redeem", "", amount)
	return nil
}
