package scenario

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/quorumgate/quorumgate/internal/govern"
	"github.com/quorumgate/quorumgate/internal/principal"
	"github.com/quorumgate/quorumgate/internal/request"
)

// Step is one scripted governance call. Request ids are unpredictable,
// so scripts name requests with save_as and refer back to them with
// request.
type Step struct {
	Op          string   `mapstructure:"op"`
	Caller      string   `mapstructure:"caller"`
	SaveAs      string   `mapstructure:"save_as"`
	Request     string   `mapstructure:"request"`
	Owner       string   `mapstructure:"owner"`
	Addr        string   `mapstructure:"addr"`
	Impl        string   `mapstructure:"impl"`
	To          string   `mapstructure:"to"`
	Amount      uint64   `mapstructure:"amount"`
	Add         []string `mapstructure:"add"`
	Remove      []string `mapstructure:"remove"`
	ExpectError string   `mapstructure:"expect_error"`
}

type Script struct {
	Steps []Step `mapstructure:"steps"`
}

func Load(path string) (*Script, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var script Script
	if err := v.Unmarshal(&script); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("scenario has no steps")
	}

	return &script, nil
}

// expectable maps the names scripts use in expect_error to sentinels.
var expectable = map[string]error{
	"unauthorized":        request.ErrUnauthorized,
	"not_found":           request.ErrNotFound,
	"already_completed":   request.ErrAlreadyCompleted,
	"generation_mismatch": request.ErrGenerationMismatch,
	"expired":             request.ErrExpired,
	"duplicate_approval":  request.ErrDuplicateApproval,
	"quorum_floor":        principal.ErrQuorumFloor,
	"invalid_target":      govern.ErrInvalidTarget,
	"invalid_parameters":  govern.ErrInvalidParameters,
}

// Runner executes a script against one router, resolving request
// aliases as it goes.
type Runner struct {
	router *govern.Router
	ids    map[string]request.ID
	logger zerolog.Logger
}

func NewRunner(router *govern.Router, logger zerolog.Logger) *Runner {
	return &Runner{
		router: router,
		ids:    make(map[string]request.ID),
		logger: logger,
	}
}

// Lookup resolves a script alias to the request id it produced.
func (r *Runner) Lookup(alias string) (request.ID, bool) {
	id, ok := r.ids[alias]
	return id, ok
}

func (r *Runner) Run(script *Script) error {
	for i, step := range script.Steps {
		if err := r.runStep(i, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}
	return nil
}

func (r *Runner) runStep(i int, step Step) error {
	caller := principal.ID(step.Caller)

	var (
		id        request.ID
		completed bool
		err       error
		created   bool
	)

	switch step.Op {
	case "request-transfer-ownership":
		id, err = r.router.RequestTransferOwnership(caller, step.Owner)
		created = true
	case "request-update-voters":
		id, err = r.router.RequestUpdateVoters(caller, toIDs(step.Add), toIDs(step.Remove))
		created = true
	case "request-pause":
		id, err = r.router.RequestPause(caller)
		created = true
	case "request-unpause":
		id, err = r.router.RequestUnpause(caller)
		created = true
	case "request-blacklist":
		id, err = r.router.RequestBlacklist(caller, step.Addr)
		created = true
	case "request-unblacklist":
		id, err = r.router.RequestUnblacklist(caller, step.Addr)
		created = true
	case "request-destroy-black-funds":
		id, err = r.router.RequestDestroyBlackFunds(caller, step.Addr)
		created = true
	case "request-deprecate":
		id, err = r.router.RequestDeprecate(caller, step.Impl)
		created = true
	case "request-issue":
		id, err = r.router.RequestIssue(caller, step.Amount, step.To)
		created = true
	case "request-redeem":
		id, err = r.router.RequestRedeem(caller, step.Amount)
		created = true

	case "approve-transfer-ownership":
		completed, err = r.approve(step, r.router.ApproveTransferOwnership)
	case "approve-update-voters":
		completed, err = r.approve(step, r.router.ApproveUpdateVoters)
	case "approve-pause":
		completed, err = r.approve(step, r.router.ApprovePause)
	case "approve-unpause":
		completed, err = r.approve(step, r.router.ApproveUnpause)
	case "approve-blacklist":
		completed, err = r.approve(step, r.router.ApproveBlacklist)
	case "approve-unblacklist":
		completed, err = r.approve(step, r.router.ApproveUnblacklist)
	case "approve-destroy-black-funds":
		completed, err = r.approve(step, r.router.ApproveDestroyBlackFunds)
	case "approve-deprecate":
		completed, err = r.approve(step, r.router.ApproveDeprecate)
	case "approve-issue":
		completed, err = r.approve(step, r.router.ApproveIssue)
	case "approve-redeem":
		completed, err = r.approve(step, r.router.ApproveRedeem)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if step.ExpectError != "" {
		want, ok := expectable[step.ExpectError]
		if !ok {
			return fmt.Errorf("unknown expect_error %q", step.ExpectError)
		}
		if !errors.Is(err, want) {
			return fmt.Errorf("expected %s error, got: %v", step.ExpectError, err)
		}
		r.logger.Info().
			Int("step", i+1).
			Str("op", step.Op).
			Str("expected_error", step.ExpectError).
			Msg("step failed as expected")
		return nil
	}

	if err != nil {
		return err
	}

	if created && step.SaveAs != "" {
		r.ids[step.SaveAs] = id
	}

	log := r.logger.Info().Int("step", i+1).Str("op", step.Op).Str("caller", step.Caller)
	if created {
		log = log.Str("request_id", string(id))
	} else {
		log = log.Bool("completed", completed)
	}
	log.Msg("step succeeded")

	return nil
}

func (r *Runner) approve(step Step, fn func(principal.ID, request.ID) (bool, error)) (bool, error) {
	id, ok := r.ids[step.Request]
	if !ok {
		return false, fmt.Errorf("unknown request alias %q", step.Request)
	}
	return fn(principal.ID(step.Caller), id)
}

func toIDs(in []string) []principal.ID {
	out := make([]principal.ID, 0, len(in))
	for _, s := range in {
		out = append(out, principal.ID(s))
	}
	return out
}
