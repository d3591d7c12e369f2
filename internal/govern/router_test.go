package govern

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorumgate/quorumgate/internal/event"
	"github.com/quorumgate/quorumgate/internal/ledger"
	"github.com/quorumgate/quorumgate/internal/principal"
	"github.com/quorumgate/quorumgate/internal/request"
)

type recordingSink struct {
	events []event.Event
}

func (r *recordingSink) Emit(ev event.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) ofType(t event.Type) []event.Event {
	var out []event.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	router *Router
	voters *principal.Set
	ledger *ledger.Memory
	sink   *recordingSink
	clock  time.Time
}

func newFixture(t *testing.T, members ...principal.ID) *fixture {
	t.Helper()

	f := &fixture{
		sink:  &recordingSink{},
		clock: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	voters, err := principal.New(members, f.sink)
	if err != nil {
		t.Fatalf("principal.New failed: %v", err)
	}
	f.voters = voters
	f.ledger = ledger.NewMemory("genesis-owner")

	seq := 0
	eng := request.NewWithClock[Action](voters, f.sink,
		func() time.Time { return f.clock },
		func() []byte {
			seq++
			return []byte{byte(seq)}
		})

	router, err := NewRouter(voters, eng, f.ledger, f.sink, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	f.router = router
	return f
}

func TestNewRouter_NilLedger(t *testing.T) {
	voters, _ := principal.New([]principal.ID{"a", "b", "c"}, nil)
	eng := request.New[Action](voters, nil)
	_, err := NewRouter(voters, eng, nil, nil, zerolog.Nop())
	if !errors.Is(err, ErrNilLedger) {
		t.Errorf("Expected ErrNilLedger, got: %v", err)
	}
}

func TestIssueScenario(t *testing.T) {
	// Three principals; alice requests issuance of 100 units, bob's
	// approval reaches quorum (2 = floor(3/2)+1), the ledger mints
	// exactly once, and carol's late approval is rejected.
	f := newFixture(t, "alice", "bob", "carol")

	id, err := f.router.RequestIssue("alice", 100, "treasury")
	if err != nil {
		t.Fatalf("RequestIssue failed: %v", err)
	}
	if f.router.Status(id) != request.StatusPending {
		t.Fatalf("Expected pending request, got %s", f.router.Status(id))
	}

	done, err := f.router.ApproveIssue("bob", id)
	if err != nil {
		t.Fatalf("ApproveIssue failed: %v", err)
	}
	if !done {
		t.Fatal("Expected quorum on second approval")
	}

	if f.ledger.Issued != 100 {
		t.Errorf("Expected 100 units issued, got %d", f.ledger.Issued)
	}
	calls := f.ledger.Calls()
	if len(calls) != 1 || calls[0].Op != "issue" || calls[0].Target != "treasury" {
		t.Errorf("Expected exactly one issue call, got %+v", calls)
	}

	_, err = f.router.ApproveIssue("carol", id)
	if !errors.Is(err, request.ErrAlreadyCompleted) {
		t.Errorf("Expected ErrAlreadyCompleted, got: %v", err)
	}
	if f.ledger.Issued != 100 {
		t.Errorf("Issuance must not repeat, got %d", f.ledger.Issued)
	}
}

func TestUpdateVotersScenario(t *testing.T) {
	// Add dave and remove alice in one change: cardinality stays 3, the
	// generation advances once, and an unrelated pending request becomes
	// permanently unapprovable.
	f := newFixture(t, "alice", "bob", "carol")

	pauseID, err := f.router.RequestPause("alice")
	if err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}

	changeID, err := f.router.RequestUpdateVoters("bob", []principal.ID{"dave"}, []principal.ID{"alice"})
	if err != nil {
		t.Fatalf("RequestUpdateVoters failed: %v", err)
	}

	done, err := f.router.ApproveUpdateVoters("carol", changeID)
	if err != nil {
		t.Fatalf("ApproveUpdateVoters failed: %v", err)
	}
	if !done {
		t.Fatal("Expected quorum")
	}

	if f.router.MemberCount() != 3 {
		t.Errorf("Expected cardinality 3 after add-then-remove, got %d", f.router.MemberCount())
	}
	if f.router.Generation() != 2 {
		t.Errorf("Expected generation 2, got %d", f.router.Generation())
	}

	// The pause request predates the membership change; any further
	// approval fails regardless of its remaining time-to-deadline.
	_, err = f.router.ApprovePause("dave", pauseID)
	if !errors.Is(err, request.ErrGenerationMismatch) {
		t.Errorf("Expected ErrGenerationMismatch, got: %v", err)
	}
	if f.router.Status(pauseID) != request.StatusInvalidated {
		t.Errorf("Expected invalidated status, got %s", f.router.Status(pauseID))
	}

	// The removed principal lost its authority with the change.
	_, err = f.router.RequestPause("alice")
	if !errors.Is(err, request.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for removed principal, got: %v", err)
	}
}

func TestQuorumFloorRejectionLeavesRequestPending(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	id, err := f.router.RequestUpdateVoters("alice", nil, []principal.ID{"carol"})
	if err != nil {
		t.Fatalf("RequestUpdateVoters failed: %v", err)
	}

	// The change would drop the set to 2 members; execution is rejected
	// in full and bob's approval is discarded with it.
	_, err = f.router.ApproveUpdateVoters("bob", id)
	if !errors.Is(err, principal.ErrQuorumFloor) {
		t.Fatalf("Expected ErrQuorumFloor, got: %v", err)
	}

	if f.router.MemberCount() != 3 {
		t.Errorf("Expected membership unchanged, got %d members", f.router.MemberCount())
	}
	if f.router.Generation() != 1 {
		t.Errorf("Expected generation unchanged, got %d", f.router.Generation())
	}
	info, _ := f.router.Request(id)
	if info.Status != request.StatusPending || info.Approvals != 1 {
		t.Errorf("Expected request pending with 1 approval, got %+v", info)
	}
}

func TestKindMismatchLooksLikeNotFound(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	id, _ := f.router.RequestPause("alice")
	_, err := f.router.ApproveIssue("bob", id)
	if !errors.Is(err, request.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for mismatched kind, got: %v", err)
	}

	// The mismatch must not have consumed bob's approval.
	done, err := f.router.ApprovePause("bob", id)
	if err != nil || !done {
		t.Errorf("Expected pause approval to complete: done=%v err=%v", done, err)
	}
	if !f.ledger.Paused {
		t.Error("Expected ledger to be paused")
	}
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	cases := []struct {
		name string
		call func() error
		want error
	}{
		{"EmptyOwner", func() error {
			_, err := f.router.RequestTransferOwnership("alice", "")
			return err
		}, ErrInvalidTarget},
		{"EmptyVoterChange", func() error {
			_, err := f.router.RequestUpdateVoters("alice", nil, nil)
			return err
		}, ErrInvalidParameters},
		{"ZeroVoterID", func() error {
			_, err := f.router.RequestUpdateVoters("alice", []principal.ID{""}, nil)
			return err
		}, ErrInvalidTarget},
		{"EmptyBlacklistAddr", func() error {
			_, err := f.router.RequestBlacklist("alice", "")
			return err
		}, ErrInvalidTarget},
		{"EmptyUnblacklistAddr", func() error {
			_, err := f.router.RequestUnblacklist("alice", "")
			return err
		}, ErrInvalidTarget},
		{"EmptyDestroyAddr", func() error {
			_, err := f.router.RequestDestroyBlackFunds("alice", "")
			return err
		}, ErrInvalidTarget},
		{"EmptyDeprecateImpl", func() error {
			_, err := f.router.RequestDeprecate("alice", "")
			return err
		}, ErrInvalidTarget},
		{"ZeroIssueAmount", func() error {
			_, err := f.router.RequestIssue("alice", 0, "treasury")
			return err
		}, ErrInvalidParameters},
		{"EmptyIssueRecipient", func() error {
			_, err := f.router.RequestIssue("alice", 10, "")
			return err
		}, ErrInvalidTarget},
		{"ZeroRedeemAmount", func() error {
			_, err := f.router.RequestRedeem("alice", 0)
			return err
		}, ErrInvalidParameters},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got: %v", tc.want, err)
			}
		})
	}
}

func TestBlacklistLifecycle(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	blID, _ := f.router.RequestBlacklist("alice", "0xdead")
	if _, err := f.router.ApproveBlacklist("bob", blID); err != nil {
		t.Fatalf("ApproveBlacklist failed: %v", err)
	}
	if !f.ledger.IsBlacklisted("0xdead") {
		t.Fatal("Expected address blacklisted")
	}

	dID, _ := f.router.RequestDestroyBlackFunds("bob", "0xdead")
	if _, err := f.router.ApproveDestroyBlackFunds("carol", dID); err != nil {
		t.Fatalf("ApproveDestroyBlackFunds failed: %v", err)
	}

	ubID, _ := f.router.RequestUnblacklist("carol", "0xdead")
	if _, err := f.router.ApproveUnblacklist("alice", ubID); err != nil {
		t.Fatalf("ApproveUnblacklist failed: %v", err)
	}
	if f.ledger.IsBlacklisted("0xdead") {
		t.Error("Expected address removed from blacklist")
	}
}

func TestLedgerFailureIsAtomic(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	// Destroying funds of a never-blacklisted address fails at the
	// ledger; the approving call must leave no trace.
	id, _ := f.router.RequestDestroyBlackFunds("alice", "0xclean")
	_, err := f.router.ApproveDestroyBlackFunds("bob", id)
	if !errors.Is(err, ledger.ErrNotBlacklisted) {
		t.Fatalf("Expected ledger error to surface, got: %v", err)
	}

	info, _ := f.router.Request(id)
	if info.Status != request.StatusPending || info.Approvals != 1 {
		t.Errorf("Expected request pending with 1 approval after failed execution, got %+v", info)
	}
}

func TestOwnershipAndDeprecation(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	oID, _ := f.router.RequestTransferOwnership("alice", "new-owner")
	if _, err := f.router.ApproveTransferOwnership("bob", oID); err != nil {
		t.Fatalf("ApproveTransferOwnership failed: %v", err)
	}
	if f.ledger.Owner != "new-owner" {
		t.Errorf("Expected ownership transferred, owner=%s", f.ledger.Owner)
	}

	dID, _ := f.router.RequestDeprecate("bob", "ledger-v2")
	if _, err := f.router.ApproveDeprecate("carol", dID); err != nil {
		t.Fatalf("ApproveDeprecate failed: %v", err)
	}
	if f.ledger.Deprecated != "ledger-v2" {
		t.Errorf("Expected deprecation target ledger-v2, got %s", f.ledger.Deprecated)
	}
}

func TestRedeem(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	id, _ := f.router.RequestRedeem("alice", 40)
	if _, err := f.router.ApproveRedeem("bob", id); err != nil {
		t.Fatalf("ApproveRedeem failed: %v", err)
	}
	if f.ledger.Redeemed != 40 {
		t.Errorf("Expected 40 redeemed, got %d", f.ledger.Redeemed)
	}
}

func TestNotifications(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	id, _ := f.router.RequestIssue("alice", 100, "treasury")

	requested := f.sink.ofType(event.TypeRequested)
	if len(requested) != 1 {
		t.Fatalf("Expected one requested event, got %d", len(requested))
	}
	if requested[0].Action != string(KindIssue) || requested[0].RequestID != string(id) {
		t.Errorf("Unexpected requested event: %+v", requested[0])
	}
	if requested[0].Fields["amount"] != "100" || requested[0].Fields["to"] != "treasury" {
		t.Errorf("Expected submitted parameters in the event, got %+v", requested[0].Fields)
	}

	f.router.ApproveIssue("bob", id)
	completed := f.sink.ofType(event.TypeRequestCompleted)
	if len(completed) != 1 {
		t.Fatalf("Expected one completion event, got %d", len(completed))
	}
	if completed[0].RequestID != string(id) {
		t.Errorf("Unexpected completion event: %+v", completed[0])
	}

	// Membership events only flow from completed voter changes.
	changeID, _ := f.router.RequestUpdateVoters("bob", []principal.ID{"dave"}, nil)
	f.router.ApproveUpdateVoters("carol", changeID)
	added := f.sink.ofType(event.TypeMemberAdded)
	if len(added) != 1 || added[0].Principal != "dave" {
		t.Errorf("Expected one member_added event for dave, got %+v", added)
	}
}
