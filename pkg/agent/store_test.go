package agent

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackscan/pkg/errors"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"b", "a", "c"} {
		rec := &Record{ID: id, Resource: id, Status: StatusRunning, StartedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.Create(ctx, rec); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	if err := s.Create(ctx, &Record{ID: "a"}); !errors.Is(err, errors.ErrCodeDuplicateAgent) {
		t.Errorf("duplicate Create() error = %v", err)
	}
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Load(missing) error = %v", err)
	}
	if _, err := s.Load(ctx, "../escape"); err == nil {
		t.Error("Load() accepted a path-like id")
	}

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
		t.Errorf("List() order = %v, want start-time order [b a c]", ids)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Error("record survived Remove")
	}
}
