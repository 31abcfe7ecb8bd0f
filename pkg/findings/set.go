package findings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	stackerrors "github.com/matzehuels/stackscan/pkg/errors"
	stackio "github.com/matzehuels/stackscan/pkg/io"
)

// Sources of a finding set.
const (
	SourceAgent = "agent"
	SourceCache = "cache"
)

// Set is the complete finding set of one resource. It is written as one file
// per resource and wholly replaced on every (re-)analysis.
type Set struct {
	Resource    string    `json:"resource"`
	Focus       string    `json:"focus,omitempty"`
	AgentID     string    `json:"agent_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	// RequestedAt is when the analysis that produced the set was started.
	// A set never replaces one from a later request.
	RequestedAt time.Time `json:"requested_at,omitzero"`
	GeneratedAt time.Time `json:"generated_at"`
	Findings    []Finding `json:"findings"`
}

// ParseError reports a finding-set file that cannot be used.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string         { return fmt.Sprintf("invalid finding set %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error         { return e.Err }
func (e *ParseError) Code() stackerrors.Code { return stackerrors.ErrCodeInvalidFindings }

// ParseSet decodes worker output or a published finding-set file. Both the
// finding-set object and a bare JSON array of findings are accepted. Every
// finding's Resource is set to resource when the data does not name one.
func ParseSet(data []byte, resource string) (*Set, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty finding set")
	}

	var set Set
	if data[0] == '[' {
		if err := json.Unmarshal(data, &set.Findings); err != nil {
			return nil, err
		}
	} else {
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, err
		}
	}

	if set.Resource == "" {
		set.Resource = resource
	}
	if set.Resource == "" {
		return nil, errors.New("finding set names no resource")
	}
	if set.Findings == nil {
		set.Findings = []Finding{}
	}
	for i := range set.Findings {
		f := &set.Findings[i]
		f.Resource = set.Resource
		if f.Description == "" {
			return nil, fmt.Errorf("finding %d has no description", i)
		}
		if f.Category == "" {
			f.Category = "general"
		}
	}
	return &set, nil
}

// ReadFile parses the finding-set file at path. The resource defaults to
// the file name without its extension.
func ReadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stem := filepath.Base(path)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	set, err := ParseSet(data, stem)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return set, nil
}

// SetPath returns where the finding set of resource lives in dir.
func SetPath(dir, resource string) string {
	return filepath.Join(dir, resource+".json")
}

// WriteSet publishes set into dir, atomically replacing any previous set of
// the same resource.
func WriteSet(dir string, set *Set) error {
	if err := stackerrors.ValidateResourceName(set.Resource); err != nil {
		return err
	}
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = time.Now().UTC()
	}
	if set.Findings == nil {
		set.Findings = []Finding{}
	}
	for i := range set.Findings {
		set.Findings[i].Resource = set.Resource
	}
	return stackio.WriteJSON(SetPath(dir, set.Resource), set)
}

// RemoveSet deletes the finding set of resource. A missing set is not an
// error.
func RemoveSet(dir, resource string) error {
	err := os.Remove(SetPath(dir, resource))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove finding set %s: %w", resource, err)
	}
	return nil
}
