package findings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matzehuels/stackscan/pkg/errors"
)

// Severity orders findings: Info < Low < Medium < High < Critical.
type Severity int

const (
	Info Severity = iota
	Low
	Medium
	High
	Critical
)

var severityNames = [...]string{"info", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < Info || s > Critical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Valid reports whether s is one of the five defined severities.
func (s Severity) Valid() bool { return s >= Info && s <= Critical }

// ParseSeverity parses a severity name, case-insensitively. "informational"
// and "warning" are accepted as aliases for info and medium, which some
// analyzers emit.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "informational":
		return Info, nil
	case "low":
		return Low, nil
	case "medium", "moderate", "warning":
		return Medium, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	}
	return Info, errors.New(errors.ErrCodeInvalidSeverity, "unknown severity %q", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidSeverity, "invalid severity %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("severity must be a string: %w", err)
	}
	v, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalText and UnmarshalText let severities appear in config and flags.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Finding is one reported observation about a resource. Findings are
// immutable once written.
type Finding struct {
	Resource    string   `json:"resource"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Remediation string   `json:"remediation,omitempty"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
}
