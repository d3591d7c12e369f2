package govern

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorumgate/quorumgate/internal/event"
	"github.com/quorumgate/quorumgate/internal/ledger"
	"github.com/quorumgate/quorumgate/internal/principal"
	"github.com/quorumgate/quorumgate/internal/request"
)

var (
	ErrInvalidTarget     = errors.New("required address is empty")
	ErrInvalidParameters = errors.New("invalid action parameters")
	ErrNilLedger         = errors.New("ledger reference is nil")
)

// Router binds each action kind to its Ledger operation. A request<Kind>
// call validates the kind-specific parameters, stores the payload and
// creates the request; approve<Kind> calls feed the request engine and,
// exactly once per request, invoke the bound Ledger operation when
// quorum is reached.
//
// Every entry point holds the router mutex for the whole call, Ledger
// side effect included, so calls never interleave and each one is
// atomic: it fully commits or leaves no trace.
type Router struct {
	mu     sync.Mutex
	voters *principal.Set
	eng    *request.Engine[Action]
	ledger ledger.Ledger
	sink   event.Sink
	logger zerolog.Logger
	now    func() time.Time
}

func NewRouter(voters *principal.Set, eng *request.Engine[Action], ldg ledger.Ledger, sink event.Sink, logger zerolog.Logger) (*Router, error) {
	if ldg == nil {
		return nil, ErrNilLedger
	}
	if sink == nil {
		sink = event.Discard
	}
	return &Router{
		voters: voters,
		eng:    eng,
		ledger: ldg,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}, nil
}

// --- request side ---

func (r *Router) RequestTransferOwnership(caller principal.ID, newOwner string) (request.ID, error) {
	if newOwner == "" {
		return "", fmt.Errorf("new owner: %w", ErrInvalidTarget)
	}
	return r.create(caller, TransferOwnership{NewOwner: newOwner})
}

func (r *Router) RequestUpdateVoters(caller principal.ID, add, remove []principal.ID) (request.ID, error) {
	if len(add) == 0 && len(remove) == 0 {
		return "", fmt.Errorf("voter change with empty add and remove lists: %w", ErrInvalidParameters)
	}
	for _, id := range add {
		if id.IsZero() {
			return "", fmt.Errorf("add list: %w", ErrInvalidTarget)
		}
	}
	for _, id := range remove {
		if id.IsZero() {
			return "", fmt.Errorf("remove list: %w", ErrInvalidTarget)
		}
	}
	return r.create(caller, UpdateVoters{Add: add, Remove: remove})
}

func (r *Router) RequestPause(caller principal.ID) (request.ID, error) {
	return r.create(caller, Pause{})
}

func (r *Router) RequestUnpause(caller principal.ID) (request.ID, error) {
	return r.create(caller, Unpause{})
}

func (r *Router) RequestBlacklist(caller principal.ID, addr string) (request.ID, error) {
	if addr == "" {
		return "", fmt.Errorf("blacklist target: %w", ErrInvalidTarget)
	}
	return r.create(caller, Blacklist{Addr: addr})
}

func (r *Router) RequestUnblacklist(caller principal.ID, addr string) (request.ID, error) {
	if addr == "" {
		return "", fmt.Errorf("unblacklist target: %w", ErrInvalidTarget)
	}
	return r.create(caller, Unblacklist{Addr: addr})
}

func (r *Router) RequestDestroyBlackFunds(caller principal.ID, addr string) (request.ID, error) {
	if addr == "" {
		return "", fmt.Errorf("destroy-black-funds target: %w", ErrInvalidTarget)
	}
	return r.create(caller, DestroyBlackFunds{Addr: addr})
}

func (r *Router) RequestDeprecate(caller principal.ID, newImpl string) (request.ID, error) {
	if newImpl == "" {
		return "", fmt.Errorf("replacement implementation: %w", ErrInvalidTarget)
	}
	return r.create(caller, Deprecate{NewImpl: newImpl})
}

func (r *Router) RequestIssue(caller principal.ID, amount uint64, to string) (request.ID, error) {
	if amount == 0 {
		return "", fmt.Errorf("issue amount must be positive: %w", ErrInvalidParameters)
	}
	if to == "" {
		return "", fmt.Errorf("issue recipient: %w", ErrInvalidTarget)
	}
	return r.create(caller, Issue{Amount: amount, To: to})
}

func (r *Router) RequestRedeem(caller principal.ID, amount uint64) (request.ID, error) {
	if amount == 0 {
		return "", fmt.Errorf("redeem amount must be positive: %w", ErrInvalidParameters)
	}
	return r.create(caller, Redeem{Amount: amount})
}

// --- approve side ---

func (r *Router) ApproveTransferOwnership(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindTransferOwnership)
}

func (r *Router) ApproveUpdateVoters(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindUpdateVoters)
}

func (r *Router) ApprovePause(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindPause)
}

func (r *Router) ApproveUnpause(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindUnpause)
}

func (r *Router) ApproveBlacklist(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindBlacklist)
}

func (r *Router) ApproveUnblacklist(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindUnblacklist)
}

func (r *Router) ApproveDestroyBlackFunds(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindDestroyBlackFunds)
}

func (r *Router) ApproveDeprecate(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindDeprecate)
}

func (r *Router) ApproveIssue(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindIssue)
}

func (r *Router) ApproveRedeem(caller principal.ID, id request.ID) (bool, error) {
	return r.approve(caller, id, KindRedeem)
}

// --- read-only queries ---

func (r *Router) Members() []principal.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voters.Members()
}

func (r *Router) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voters.Len()
}

func (r *Router) MinApprovals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voters.MinApprovals()
}

func (r *Router) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voters.Generation()
}

func (r *Router) Status(id request.ID) request.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng.Status(id)
}

func (r *Router) Request(id request.ID) (request.Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng.Get(id)
}

// --- internals ---

func (r *Router) create(caller principal.ID, a Action) (request.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.eng.Create(caller, a)
	if err != nil {
		return "", err
	}

	r.logger.Info().
		Str("action", string(a.Kind())).
		Str("request_id", string(id)).
		Str("requester", string(caller)).
		Msg("governance request created")

	r.sink.Emit(event.Event{
		Type:      event.TypeRequested,
		Action:    string(a.Kind()),
		RequestID: string(id),
		Principal: string(caller),
		Fields:    a.fields(),
		Timestamp: r.now(),
	})

	return id, nil
}

func (r *Router) approve(caller principal.ID, id request.ID, kind Kind) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done, err := r.eng.Approve(caller, id,
		func(a Action) error {
			// Per-kind surfaces never see each other's requests: a
			// mismatched id looks the same as a missing one.
			if a.Kind() != kind {
				return fmt.Errorf("no %s request with id %s: %w", kind, id, request.ErrNotFound)
			}
			return nil
		},
		r.execute,
	)
	if err != nil {
		return false, err
	}

	if done {
		r.logger.Info().
			Str("action", string(kind)).
			Str("request_id", string(id)).
			Str("approver", string(caller)).
			Msg("quorum reached, action executed")
	}

	return done, nil
}

// execute performs the single Ledger (or voter set) operation bound to
// the action. Called at most once per request, inside the approving
// call's atomic scope.
func (r *Router) execute(a Action) error {
	switch a := a.(type) {
	case TransferOwnership:
		return r.ledger.TransferOwnership(a.NewOwner)
	case UpdateVoters:
		return r.voters.Apply(a.Add, a.Remove)
	case Pause:
		return r.ledger.Pause()
	case Unpause:
		return r.ledger.Unpause()
	case Blacklist:
		return r.ledger.AddBlackList(a.Addr)
	case Unblacklist:
		return r.ledger.RemoveBlackList(a.Addr)
	case DestroyBlackFunds:
		return r.ledger.DestroyBlackFunds(a.Addr)
	case Deprecate:
		return r.ledger.Deprecate(a.NewImpl)
	case Issue:
		return r.ledger.Issue(a.Amount, a.To)
	case Redeem:
		return r.ledger.Redeem(a.Amount)
	default:
		return fmt.Errorf("unhandled action kind %s: %w", a.Kind(), ErrInvalidParameters)
	}
}
