package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quorumgate/quorumgate/internal/event"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Manager forwards governance notifications to a Slack webhook. It
// implements event.Sink; when disabled or unconfigured every emit is a
// silent no-op.
type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
	}
}

func (m *Manager) Emit(ev event.Event) error {
	if !m.enabled || m.slackWebhook == "" {
		return nil
	}

	var msg slackMessage
	switch ev.Type {
	case event.TypeRequestCompleted:
		msg = m.completedMessage(ev)
	case event.TypeMemberAdded, event.TypeMemberRemoved:
		msg = m.membershipMessage(ev)
	case event.TypeRequested:
		msg = m.requestedMessage(ev)
	default:
		return nil
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) completedMessage(ev event.Event) slackMessage {
	return slackMessage{
		Text: "✅ *GOVERNANCE ACTION EXECUTED*",
		Attachments: []slackAttachment{
			{
				Color: "good",
				Title: "Request Completed",
				Fields: append([]slackField{
					{Title: "Request ID", Value: ev.RequestID, Short: false},
					{Title: "Final Approver", Value: ev.Principal, Short: true},
				}, extraFields(ev)...),
				Footer: "QuorumGate Governance",
				Ts:     ev.Timestamp.Unix(),
			},
		},
	}
}

func (m *Manager) membershipMessage(ev event.Event) slackMessage {
	title := "Voting Principal Added"
	color := "good"
	if ev.Type == event.TypeMemberRemoved {
		title = "Voting Principal Removed"
		color = "warning"
	}

	return slackMessage{
		Text: "⚠️ *VOTING SET CHANGED*",
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: title,
				Fields: append([]slackField{
					{Title: "Principal", Value: ev.Principal, Short: true},
				}, extraFields(ev)...),
				Footer: "QuorumGate Governance",
				Ts:     ev.Timestamp.Unix(),
			},
		},
	}
}

func (m *Manager) requestedMessage(ev event.Event) slackMessage {
	return slackMessage{
		Text: fmt.Sprintf("📝 *GOVERNANCE REQUEST: %s*", ev.Action),
		Attachments: []slackAttachment{
			{
				Color: "#439FE0",
				Title: "New Request Awaiting Approvals",
				Fields: append([]slackField{
					{Title: "Request ID", Value: ev.RequestID, Short: false},
					{Title: "Requester", Value: ev.Principal, Short: true},
				}, extraFields(ev)...),
				Footer: "QuorumGate Governance",
				Ts:     ev.Timestamp.Unix(),
			},
		},
	}
}

func extraFields(ev event.Event) []slackField {
	fields := make([]slackField, 0, len(ev.Fields))
	for k, v := range ev.Fields {
		fields = append(fields, slackField{Title: k, Value: v, Short: true})
	}
	return fields
}

func (m *Manager) sendSlackMessage(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.slackWebhook, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
