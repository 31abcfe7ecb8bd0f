package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	stackerrors "github.com/matzehuels/stackscan/pkg/errors"
	stackio "github.com/matzehuels/stackscan/pkg/io"
)

// File names inside an agent directory.
const (
	RecordFile   = "agent.json"
	SpecFile     = "spec.json"
	ExitFile     = "exit.json"
	StdoutFile   = "stdout.log"
	StderrFile   = "stderr.log"
	FindingsFile = "findings.json"
)

// Store persists agent records. Each agent exclusively owns its directory.
type Store interface {
	// Create registers a new record. It fails with DUPLICATE_AGENT when the
	// id is already present.
	Create(ctx context.Context, rec *Record) error
	Save(ctx context.Context, rec *Record) error
	// Load fails with NOT_FOUND for unknown ids.
	Load(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Remove(ctx context.Context, id string) error
	// Dir is the directory holding the agent's files.
	Dir(id string) string
	// Root is the directory holding every agent directory.
	Root() string
}

// FileStore keeps one directory per agent below root.
type FileStore struct {
	root   string
	logger *log.Logger
}

// NewFileStore creates root if needed.
func NewFileStore(root string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create agents dir: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{root: root, logger: logger}, nil
}

func (s *FileStore) Root() string         { return s.root }
func (s *FileStore) Dir(id string) string { return filepath.Join(s.root, id) }

func (s *FileStore) Create(ctx context.Context, rec *Record) error {
	if err := stackerrors.ValidateAgentID(rec.ID); err != nil {
		return err
	}
	// Mkdir is the exclusivity check: it fails if another invocation
	// created the same id first.
	if err := os.Mkdir(s.Dir(rec.ID), 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return stackerrors.New(stackerrors.ErrCodeDuplicateAgent, "agent %q already exists", rec.ID)
		}
		return fmt.Errorf("create agent dir: %w", err)
	}
	return s.Save(ctx, rec)
}

func (s *FileStore) Save(_ context.Context, rec *Record) error {
	if err := stackio.WriteJSON(filepath.Join(s.Dir(rec.ID), RecordFile), rec); err != nil {
		return fmt.Errorf("save agent %s: %w", rec.ID, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (*Record, error) {
	if err := stackerrors.ValidateAgentID(id); err != nil {
		return nil, err
	}
	var rec Record
	found, err := stackio.ReadJSON(filepath.Join(s.Dir(id), RecordFile), &rec)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", id, err)
	}
	if !found {
		return nil, stackerrors.New(stackerrors.ErrCodeNotFound, "agent %q not found", id)
	}
	return &rec, nil
}

// List returns every readable record ordered by start time, then id.
// Directories without a record (a spawn in progress) are skipped silently;
// unreadable records are skipped with a warning.
func (s *FileStore) List(ctx context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list agents: %w", err)
	}

	var recs []*Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := s.Load(ctx, e.Name())
		if err != nil {
			if !stackerrors.Is(err, stackerrors.ErrCodeNotFound) {
				s.logger.Warn("skipping unreadable agent record", "agent", e.Name(), "err", err)
			}
			continue
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].StartedAt.Equal(recs[j].StartedAt) {
			return recs[i].StartedAt.Before(recs[j].StartedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

func (s *FileStore) Remove(_ context.Context, id string) error {
	if err := stackerrors.ValidateAgentID(id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(id)); err != nil {
		return fmt.Errorf("remove agent %s: %w", id, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
