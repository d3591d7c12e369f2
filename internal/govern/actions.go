package govern

import (
	"fmt"
	"strings"

	"github.com/quorumgate/quorumgate/internal/principal"
)

type Kind string

const (
	KindTransferOwnership Kind = "transfer_ownership"
	KindUpdateVoters      Kind = "update_voters"
	KindPause             Kind = "pause"
	KindUnpause           Kind = "unpause"
	KindBlacklist         Kind = "blacklist"
	KindUnblacklist       Kind = "unblacklist"
	KindDestroyBlackFunds Kind = "destroy_black_funds"
	KindDeprecate         Kind = "deprecate"
	KindIssue             Kind = "issue"
	KindRedeem            Kind = "redeem"
)

// Action is the payload of one governance request. One variant exists
// per supported kind; the payload is stored at creation and read once
// when quorum is reached.
type Action interface {
	Kind() Kind
	// fields describes the payload in the kind-specific "requested"
	// notification.
	fields() map[string]string
}

type TransferOwnership struct {
	NewOwner string
}

func (TransferOwnership) Kind() Kind { return KindTransferOwnership }
func (a TransferOwnership) fields() map[string]string {
	return map[string]string{"new_owner": a.NewOwner}
}

type UpdateVoters struct {
	Add    []principal.ID
	Remove []principal.ID
}

func (UpdateVoters) Kind() Kind { return KindUpdateVoters }
func (a UpdateVoters) fields() map[string]string {
	return map[string]string{
		"add":    joinIDs(a.Add),
		"remove": joinIDs(a.Remove),
	}
}

type Pause struct{}

func (Pause) Kind() Kind                { return KindPause }
func (Pause) fields() map[string]string { return nil }

type Unpause struct{}

func (Unpause) Kind() Kind                { return KindUnpause }
func (Unpause) fields() map[string]string { return nil }

type Blacklist struct {
	Addr string
}

func (Blacklist) Kind() Kind { return KindBlacklist }
func (a Blacklist) fields() map[string]string {
	return map[string]string{"addr": a.Addr}
}

type Unblacklist struct {
	Addr string
}

func (Unblacklist) Kind() Kind { return KindUnblacklist }
func (a Unblacklist) fields() map[string]string {
	return map[string]string{"addr": a.Addr}
}

type DestroyBlackFunds struct {
	Addr string
}

func (DestroyBlackFunds) Kind() Kind { return KindDestroyBlackFunds }
func (a DestroyBlackFunds) fields() map[string]string {
	return map[string]string{"addr": a.Addr}
}

type Deprecate struct {
	NewImpl string
}

func (Deprecate) Kind() Kind { return KindDeprecate }
func (a Deprecate) fields() map[string]string {
	return map[string]string{"new_impl": a.NewImpl}
}

type Issue struct {
	Amount uint64
	To     string
}

func (Issue) Kind() Kind { return KindIssue }
func (a Issue) fields() map[string]string {
	return map[string]string{
		"amount": fmt.Sprintf("%d", a.Amount),
		"to":     a.To,
	}
}

type Redeem struct {
	Amount uint64
}

func (Redeem) Kind() Kind { return KindRedeem }
func (a Redeem) fields() map[string]string {
	return map[string]string{"amount": fmt.Sprintf("%d", a.Amount)}
}

func joinIDs(ids []principal.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
