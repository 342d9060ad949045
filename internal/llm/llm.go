// Package llm wraps the external text-generation service used for intent
// classification and reply generation. The service is treated as a black box:
// a prompt goes in, plain text comes out, and classification labels are parsed
// by case-insensitive substring match on the response.
package llm

import (
	"context"
	"strings"
)

// Message represents one conversation turn passed as context to the model.
type Message struct {
	Role    string `json:"role"` // "user" or "bot"
	Content string `json:"content"`
}

// Client defines the interface for text-generation providers.
type Client interface {
	// Generate sends a single prompt and returns the raw text response.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Classification labels. The controller matches these against raw model
// output; anything that matches none of them falls through to the default
// branch of the relevant decision.
const (
	LabelRelevant    = "RELEVANT"
	LabelNotRelevant = "NOT_RELEVANT"

	LabelComplaint = "COMPLAINT"
	LabelInquiry   = "INQUIRY"

	LabelResolved = "RESOLVED"
	LabelOngoing  = "ONGOING"

	LabelAwaitingInfo      = "AWAITING_INFO"
	LabelEscalationPending = "ESCALATION_PENDING"
	LabelOffTopic          = "OFF_TOPIC"
	LabelOpen              = "OPEN"

	// LabelEscalate is returned by the solver prompt in place of a normal
	// reply when the issue needs a human operator.
	LabelEscalate = "ESCALATE"
)

// MatchLabel returns the first of the given labels found in the model output
// (case-insensitive substring match), or ("", false) when none matches.
// Order matters: pass the more specific label first when one label is a
// substring of another (e.g. NOT_RELEVANT before RELEVANT).
func MatchLabel(output string, labels ...string) (string, bool) {
	up := strings.ToUpper(output)
	for _, l := range labels {
		if strings.Contains(up, strings.ToUpper(l)) {
			return l, true
		}
	}
	return "", false
}
