package models

import (
	"fmt"
	"strings"
)

// Decision is a moderator's verdict on a pending submission.
type Decision string

const (
	DecisionPromote Decision = "promote"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts "promote", its alias "approve", and "reject".
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "promote", "approve":
		return DecisionPromote, nil
	case "reject":
		return DecisionReject, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}
