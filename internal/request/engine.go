package request

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quorumgate/quorumgate/internal/event"
	"github.com/quorumgate/quorumgate/internal/hash"
	"github.com/quorumgate/quorumgate/internal/principal"
)

// DefaultTTL is how long a request stays approvable after creation.
const DefaultTTL = 48 * time.Hour

var (
	ErrUnauthorized       = errors.New("caller is not a voting principal")
	ErrNotFound           = errors.New("no such request")
	ErrAlreadyCompleted   = errors.New("request already completed")
	ErrGenerationMismatch = errors.New("voting set changed since request creation")
	ErrExpired            = errors.New("request deadline passed")
	ErrDuplicateApproval  = errors.New("principal already approved this request")
)

// ID is an opaque request identifier. Ids are derived from a monotonic
// sequence mixed with entropy drawn at creation time, so an id cannot be
// predicted before the request exists.
type ID string

// Voters is the engine's view of the principal set. Satisfied by
// principal.Set.
type Voters interface {
	Contains(id principal.ID) bool
	MinApprovals() int
	Generation() uint64
}

type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusPending     Status = "pending"
	StatusCompleted   Status = "completed"
	StatusExpired     Status = "expired"
	StatusInvalidated Status = "invalidated"
)

// Info is the read-only view of one request.
type Info struct {
	Status     Status
	Approvals  int
	Deadline   time.Time
	Generation uint64
}

type record[P any] struct {
	payload    P
	generation uint64
	deadline   time.Time
	approvals  map[principal.ID]struct{}
	completed  bool
}

// Engine tracks the lifecycle of pending requests: creation, approval
// bookkeeping, quorum evaluation, deadline and generation validation.
// It is generic over the action payload; it never interprets payloads
// beyond handing them to the caller's callbacks. Callers serialize
// access; the engine carries no locking.
type Engine[P any] struct {
	voters  Voters
	reqs    map[ID]*record[P]
	seq     uint64
	ttl     time.Duration
	now     func() time.Time
	entropy func() []byte
	sink    event.Sink
}

func New[P any](voters Voters, sink event.Sink) *Engine[P] {
	return NewWithClock[P](voters, sink, time.Now, func() []byte {
		u := uuid.New()
		return u[:]
	})
}

// NewWithClock injects the time source and entropy source. Production
// code uses New; tests use this to pin the clock or the id material.
func NewWithClock[P any](voters Voters, sink event.Sink, now func() time.Time, entropy func() []byte) *Engine[P] {
	if sink == nil {
		sink = event.Discard
	}
	return &Engine[P]{
		voters:  voters,
		reqs:    make(map[ID]*record[P]),
		ttl:     DefaultTTL,
		now:     now,
		entropy: entropy,
		sink:    sink,
	}
}

// SetTTL overrides the request validity window. Zero or negative values
// are ignored.
func (e *Engine[P]) SetTTL(d time.Duration) {
	if d > 0 {
		e.ttl = d
	}
}

// Create registers a new request with the caller as its first approver
// and returns the fresh id. The current generation is snapshotted and
// the deadline starts counting from now.
func (e *Engine[P]) Create(caller principal.ID, payload P) (ID, error) {
	if !e.voters.Contains(caller) {
		return "", fmt.Errorf("principal %q: %w", caller, ErrUnauthorized)
	}

	gen := e.voters.Generation()
	id := e.nextID(gen)
	if _, exists := e.reqs[id]; exists {
		// Ids mix a strictly increasing sequence with fresh entropy; a
		// collision means that invariant broke.
		panic(fmt.Sprintf("request id collision: %s", id))
	}

	e.reqs[id] = &record[P]{
		payload:    payload,
		generation: gen,
		deadline:   e.now().Add(e.ttl),
		approvals:  map[principal.ID]struct{}{caller: {}},
	}

	return id, nil
}

// Approve records one approval. verify, if non-nil, runs after the
// lifecycle checks and may reject the request's payload. When this
// approval reaches the live majority threshold, exec runs with the
// stored payload; only if exec succeeds does the engine commit the
// approval and mark the request completed, so a failed side effect
// leaves the request exactly as it was. Returns whether the request
// completed on this call.
func (e *Engine[P]) Approve(caller principal.ID, id ID, verify, exec func(P) error) (bool, error) {
	if !e.voters.Contains(caller) {
		return false, fmt.Errorf("principal %q: %w", caller, ErrUnauthorized)
	}

	r, ok := e.reqs[id]
	if !ok {
		return false, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if r.completed {
		return false, fmt.Errorf("request %s: %w", id, ErrAlreadyCompleted)
	}
	if r.generation != e.voters.Generation() {
		return false, fmt.Errorf("request %s created at generation %d, now %d: %w",
			id, r.generation, e.voters.Generation(), ErrGenerationMismatch)
	}
	if e.now().After(r.deadline) {
		return false, fmt.Errorf("request %s: %w", id, ErrExpired)
	}
	if _, dup := r.approvals[caller]; dup {
		return false, fmt.Errorf("principal %q on request %s: %w", caller, id, ErrDuplicateApproval)
	}

	if verify != nil {
		if err := verify(r.payload); err != nil {
			return false, err
		}
	}

	if len(r.approvals)+1 < e.voters.MinApprovals() {
		r.approvals[caller] = struct{}{}
		return false, nil
	}

	// Quorum reached: run the bound side effect before committing any
	// bookkeeping, so a Ledger failure discards the whole call.
	if exec != nil {
		if err := exec(r.payload); err != nil {
			return false, fmt.Errorf("executing request %s: %w", id, err)
		}
	}

	r.approvals[caller] = struct{}{}
	r.completed = true

	e.sink.Emit(event.Event{
		Type:      event.TypeRequestCompleted,
		RequestID: string(id),
		Principal: string(caller),
		Fields:    map[string]string{"approvals": fmt.Sprintf("%d", len(r.approvals))},
		Timestamp: e.now(),
	})

	return true, nil
}

// Get returns the read-only view of a request. The second return is
// false when the id was never created.
func (e *Engine[P]) Get(id ID) (Info, bool) {
	r, ok := e.reqs[id]
	if !ok {
		return Info{Status: StatusUnknown}, false
	}

	info := Info{
		Status:     StatusPending,
		Approvals:  len(r.approvals),
		Deadline:   r.deadline,
		Generation: r.generation,
	}
	switch {
	case r.completed:
		info.Status = StatusCompleted
	case r.generation != e.voters.Generation():
		info.Status = StatusInvalidated
	case e.now().After(r.deadline):
		info.Status = StatusExpired
	}
	return info, true
}

// Status is the per-request lifecycle query: pending, completed,
// expired, invalidated, or unknown.
func (e *Engine[P]) Status(id ID) Status {
	info, _ := e.Get(id)
	return info.Status
}

func (e *Engine[P]) nextID(generation uint64) ID {
	e.seq++

	buf := make([]byte, 16, 16+16)
	binary.BigEndian.PutUint64(buf[0:8], e.seq)
	binary.BigEndian.PutUint64(buf[8:16], generation)
	buf = append(buf, e.entropy()...)

	return ID(hash.CalculateBytes(buf))
}
