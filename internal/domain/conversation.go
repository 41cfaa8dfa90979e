package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConversationTurn is one prior query supplied by the caller. ResolvedLocation
// is nil when that turn's resolution failed.
type ConversationTurn struct {
	Query            string    `json:"query" validate:"required"`
	ResolvedLocation *string   `json:"resolvedLocation"`
	Timestamp        time.Time `json:"timestamp" validate:"required"`
}

// Location returns the resolved location text, or "" when unresolved.
func (t ConversationTurn) Location() string {
	if t.ResolvedLocation == nil {
		return ""
	}
	return *t.ResolvedLocation
}

// ValidateTurns checks the required fields of caller-supplied history.
func ValidateTurns(turns []ConversationTurn) error {
	for i, t := range turns {
		if strings.TrimSpace(t.Query) == "" {
			return InputError(fmt.Sprintf("priorTurns[%d]: query is required", i))
		}
		if t.Timestamp.IsZero() {
			return InputError(fmt.Sprintf("priorTurns[%d]: timestamp is required", i))
		}
	}
	return nil
}

// LastResolvedLocation returns the most recent non-empty resolved location.
func LastResolvedLocation(turns []ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if loc := strings.TrimSpace(turns[i].Location()); loc != "" {
			return loc
		}
	}
	return ""
}
