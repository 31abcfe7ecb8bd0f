// Package manifest extracts package identity and dependency identifiers from
// the manifest files found in a resource directory.
//
// Each ecosystem is handled by an isolated [Parser]. [Extract] runs every
// parser against the top-level files of a directory and merges the results.
// A missing or unsupported manifest is not an error: it simply contributes
// nothing. A malformed manifest is logged as a warning and contributes nothing
// for its ecosystem; extraction never fails.
//
// The concrete parsers live in subpackages (golang, javascript, rust, python,
// java, php, dart); [ecosystems.Default] returns them in priority order.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackscan/pkg/errors"
)

// Parser reads identity and dependency information from one kind of
// manifest file.
type Parser interface {
	// Ecosystem returns the ecosystem identifier (e.g., "go", "npm").
	Ecosystem() string
	// Supports reports whether this parser handles the given filename.
	Supports(filename string) bool
	// Parse reads the manifest at path.
	Parse(path string) (*Result, error)
}

// Result holds what one manifest file declares.
type Result struct {
	Identity     string   // Provided package identity, empty if none
	Dependencies []string // Raw dependency identifiers
}

// Extraction is the merged result for one resource directory.
type Extraction struct {
	// Identity is the primary provided identity: the first one declared in
	// parser order. Empty when no manifest declares an identity.
	Identity string `json:"identity,omitempty"`
	// Identities lists every declared identity, primary first.
	Identities []string `json:"identities,omitempty"`
	// Dependencies is the sorted, de-duplicated set of dependency identifiers.
	Dependencies []string `json:"dependencies"`
	// Ecosystems lists the ecosystems that contributed, in parser order.
	Ecosystems []string `json:"ecosystems,omitempty"`
}

// ParseError reports a malformed manifest. It is always recovered by
// [Extract] and only surfaces through logging.
type ParseError struct {
	Ecosystem string
	Path      string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s manifest %s: %v", e.Ecosystem, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error     { return e.Err }
func (e *ParseError) Code() errors.Code { return errors.ErrCodeInvalidManifest }

// Extract runs parsers against the regular files directly inside dir.
// Files are visited in name order, parsers in slice order. The logger may be
// nil, in which case log.Default() is used.
func Extract(dir string, parsers []Parser, logger *log.Logger) Extraction {
	if logger == nil {
		logger = log.Default()
	}

	var ext Extraction
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("cannot read resource directory", "dir", dir, "err", err)
		return ext
	}

	deps := make(map[string]bool)
	for _, p := range parsers {
		contributed := false
		for _, entry := range entries {
			if entry.IsDir() || !p.Supports(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			res, err := p.Parse(path)
			if err != nil {
				logger.Warn("skipping malformed manifest",
					"err", &ParseError{Ecosystem: p.Ecosystem(), Path: path, Err: err})
				continue
			}
			contributed = true
			if res.Identity != "" && !slices.Contains(ext.Identities, res.Identity) {
				ext.Identities = append(ext.Identities, res.Identity)
			}
			for _, d := range res.Dependencies {
				if d != "" {
					deps[d] = true
				}
			}
		}
		if contributed && !slices.Contains(ext.Ecosystems, p.Ecosystem()) {
			ext.Ecosystems = append(ext.Ecosystems, p.Ecosystem())
		}
	}

	if len(ext.Identities) > 0 {
		ext.Identity = ext.Identities[0]
	}
	ext.Dependencies = make([]string, 0, len(deps))
	for d := range deps {
		ext.Dependencies = append(ext.Dependencies, d)
	}
	slices.Sort(ext.Dependencies)
	return ext
}

// ExtractAll runs [Extract] for every directory concurrently and returns
// the results in input order. It only fails if ctx is cancelled.
func ExtractAll(ctx context.Context, dirs []string, parsers []Parser, logger *log.Logger) ([]Extraction, error) {
	out := make([]Extraction, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Extract(dir, parsers, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
