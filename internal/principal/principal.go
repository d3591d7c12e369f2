package principal

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/quorumgate/quorumgate/internal/event"
)

// MinVotingAccounts is the floor below which the voting set must never
// drop once constructed.
const MinVotingAccounts = 3

// maxVotingAccounts bounds the member counter. Not reachable in
// practice; checked so the invariant holds by construction.
const maxVotingAccounts = math.MaxInt32

var (
	ErrInsufficientPrincipals = errors.New("fewer than the minimum number of unique principals")
	ErrQuorumFloor            = errors.New("removal would drop the voting set below the minimum")
	ErrOverflow               = errors.New("voting set exceeds the representable maximum")
	ErrInvalidPrincipal       = errors.New("empty principal id")
)

// ID is an opaque, externally-authenticated principal identity.
type ID string

func (id ID) IsZero() bool {
	return id == ""
}

// Set tracks the authorized voting principals. Its generation counter
// advances exactly once per completed membership change, never per
// individual member. Callers serialize access; Set itself carries no
// locking.
type Set struct {
	members    map[ID]struct{}
	generation uint64
	sink       event.Sink
	now        func() time.Time
}

// New builds a Set from the initial principal list. Duplicates collapse;
// fewer than MinVotingAccounts unique ids is an error. Generation starts
// at 1.
func New(initial []ID, sink event.Sink) (*Set, error) {
	if sink == nil {
		sink = event.Discard
	}

	members := make(map[ID]struct{}, len(initial))
	for _, id := range initial {
		if id.IsZero() {
			return nil, fmt.Errorf("initial principal list: %w", ErrInvalidPrincipal)
		}
		members[id] = struct{}{}
	}

	if len(members) < MinVotingAccounts {
		return nil, fmt.Errorf("got %d unique principals, need %d: %w",
			len(members), MinVotingAccounts, ErrInsufficientPrincipals)
	}

	return &Set{
		members:    members,
		generation: 1,
		sink:       sink,
		now:        time.Now,
	}, nil
}

func (s *Set) Contains(id ID) bool {
	_, ok := s.members[id]
	return ok
}

func (s *Set) Len() int {
	return len(s.members)
}

func (s *Set) Generation() uint64 {
	return s.generation
}

// MinApprovals is the strict-majority threshold, floor(N/2)+1, computed
// against the live cardinality at call time.
func (s *Set) MinApprovals() int {
	return len(s.members)/2 + 1
}

func (s *Set) Members() []ID {
	out := make([]ID, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Apply executes one completed membership-change request: additions
// first, then removals, so an id present in both lists ends up removed.
// The whole batch commits or none of it does; a result below
// MinVotingAccounts rejects the batch. On success the generation
// advances exactly once and membership notifications are emitted for
// the ids that actually changed.
func (s *Set) Apply(add, remove []ID) error {
	staged := make(map[ID]struct{}, len(s.members)+len(add))
	for id := range s.members {
		staged[id] = struct{}{}
	}

	var added []ID
	for _, id := range add {
		if id.IsZero() {
			return fmt.Errorf("add list: %w", ErrInvalidPrincipal)
		}
		if _, ok := staged[id]; ok {
			continue
		}
		if len(staged) >= maxVotingAccounts {
			return fmt.Errorf("adding %q: %w", id, ErrOverflow)
		}
		staged[id] = struct{}{}
		added = append(added, id)
	}

	var removed []ID
	for _, id := range remove {
		if _, ok := staged[id]; !ok {
			continue
		}
		if len(staged)-1 < MinVotingAccounts {
			return fmt.Errorf("removing %q would leave %d principals: %w",
				id, len(staged)-1, ErrQuorumFloor)
		}
		delete(staged, id)
		removed = append(removed, id)
	}

	s.members = staged
	s.generation++

	for _, id := range added {
		s.emit(event.TypeMemberAdded, id)
	}
	for _, id := range removed {
		s.emit(event.TypeMemberRemoved, id)
	}

	return nil
}

func (s *Set) emit(t event.Type, id ID) {
	s.sink.Emit(event.Event{
		Type:      t,
		Principal: string(id),
		Fields:    map[string]string{"generation": fmt.Sprintf("%d", s.generation)},
		Timestamp: s.now(),
	})
}
