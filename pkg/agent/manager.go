package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/matzehuels/stackscan/pkg/errors"
	stackio "github.com/matzehuels/stackscan/pkg/io"
	"github.com/matzehuels/stackscan/pkg/observability"
)

// Defaults for [Config].
const (
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultSpawnGrace is how long a pending record without a PID is
	// assumed to belong to a spawn still in progress elsewhere.
	DefaultSpawnGrace = 30 * time.Second
)

// Config tunes a Manager.
type Config struct {
	Commands       Commands
	DefaultTimeout time.Duration
	PollInterval   time.Duration
	SpawnGrace     time.Duration
}

// Publisher runs when an agent is classified completed, before the
// completed status is persisted. An error turns the agent into failed.
type Publisher func(ctx context.Context, rec *Record) error

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPublisher installs the completion hook.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publish = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager spawns, tracks and reconciles agents. It holds no agent state of
// its own; the store is the source of truth.
type Manager struct {
	store    Store
	launcher Launcher
	cfg      Config
	logger   *log.Logger
	publish  Publisher
	now      func() time.Time

	mu sync.Mutex // serializes reconciliation within this process
}

// NewManager creates a manager over store.
func NewManager(store Store, launcher Launcher, cfg Config, opts ...Option) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SpawnGrace <= 0 {
		cfg.SpawnGrace = DefaultSpawnGrace
	}
	m := &Manager{
		store:    store,
		launcher: launcher,
		cfg:      cfg,
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// NewID returns a fresh agent id for resource and focus.
func NewID(resource string, focus Focus) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", sanitizeID(resource), focus, suffix)
}

func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.TrimLeft(b.String(), "._-")
	if len(out) > 96 {
		out = out[:96]
	}
	if out == "" {
		return "agent"
	}
	return out
}

// Spawn records a pending agent, starts its supervisor and records it as
// running. If the supervisor cannot be started the record is persisted as
// failed and returned together with an AGENT_SPAWN error.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*Record, error) {
	focus, err := ParseFocus(string(req.Focus))
	if err != nil {
		return nil, err
	}
	if err := errors.ValidateResourceName(req.Resource); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = NewID(req.Resource, focus)
	} else if err := errors.ValidateAgentID(id); err != nil {
		return nil, err
	}
	if err := m.claim(ctx, id); err != nil {
		return nil, err
	}

	path, err := filepath.Abs(req.ResourcePath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", req.ResourcePath)
	}
	dir := m.store.Dir(id)
	vars := Vars{Resource: req.Resource, Path: path, Focus: focus, Output: filepath.Join(dir, FindingsFile)}
	argv, err := m.cfg.Commands.Resolve(focus, vars)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = m.cfg.DefaultTimeout
	}
	now := m.now().UTC()
	rec := &Record{
		ID:           id,
		Resource:     req.Resource,
		ResourcePath: path,
		Focus:        focus,
		Command:      argv,
		Status:       StatusPending,
		StartedAt:    now,
		Stdout:       filepath.Join(dir, StdoutFile),
		Stderr:       filepath.Join(dir, StderrFile),
		Findings:     vars.Output,
		Fingerprint:  req.Fingerprint,
	}
	if timeout > 0 {
		deadline := now.Add(timeout)
		rec.Deadline = &deadline
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	spec := Spec{
		AgentID:      id,
		Command:      argv,
		WorkDir:      path,
		Env:          vars.Env(id),
		Stdout:       rec.Stdout,
		Stderr:       rec.Stderr,
		FindingsFile: rec.Findings,
		Deadline:     rec.Deadline,
	}
	if err := stackio.WriteJSON(filepath.Join(dir, SpecFile), spec); err != nil {
		return m.spawnFailed(ctx, rec, err)
	}

	pid, err := m.launcher.Launch(ctx, dir)
	if err != nil {
		return m.spawnFailed(ctx, rec, err)
	}

	rec.PID = pid
	rec.Status = StatusRunning
	if err := m.store.Save(ctx, rec); err != nil {
		return rec, err
	}
	observability.Agent().OnSpawn(ctx, rec.Resource, string(rec.Focus))
	m.logger.Info("agent spawned", "agent", id, "resource", rec.Resource, "focus", rec.Focus, "pid", pid)
	return rec, nil
}

// claim makes id available: unknown ids are free, terminal ones are
// discarded, live ones are a DUPLICATE_AGENT error.
func (m *Manager) claim(ctx context.Context, id string) error {
	existing, err := m.store.Load(ctx, id)
	if errors.Is(err, errors.ErrCodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	existing, err = m.Reconcile(ctx, existing)
	if err != nil {
		return err
	}
	if !existing.Status.Terminal() {
		return errors.New(errors.ErrCodeDuplicateAgent, "agent %q is still %s", id, existing.Status)
	}
	return m.store.Remove(ctx, id)
}

func (m *Manager) spawnFailed(ctx context.Context, rec *Record, cause error) (*Record, error) {
	spawnErr := errors.Wrap(errors.ErrCodeAgentSpawn, cause, "start agent %s for %s", rec.ID, rec.Resource)
	observability.Agent().OnSpawnError(ctx, rec.Resource, string(rec.Focus), spawnErr)
	m.logger.Warn("agent spawn failed", "agent", rec.ID, "resource", rec.Resource, "err", cause)
	if _, err := m.finish(ctx, rec, StatusFailed, nil, spawnErr); err != nil {
		m.logger.Warn("could not persist failed spawn", "agent", rec.ID, "err", err)
	}
	return rec, spawnErr
}

// Get returns the reconciled record for id.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Reconcile(ctx, rec)
}

// List returns every reconciled record, oldest first.
func (m *Manager) List(ctx context.Context) ([]*Record, error) {
	recs, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if recs[i], err = m.Reconcile(ctx, rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Reconcile brings a non-terminal record in line with the process table and
// the supervisor's exit report, persisting any transition. Terminal records
// are returned unchanged. The returned error reports persistence problems
// only; agent failures are expressed in the record.
func (m *Manager) Reconcile(ctx context.Context, rec *Record) (*Record, error) {
	if rec.Status.Terminal() {
		return rec, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine or process may have finished it meanwhile.
	if fresh, err := m.store.Load(ctx, rec.ID); err == nil {
		rec = fresh
		if rec.Status.Terminal() {
			return rec, nil
		}
	}

	if exit, ok, err := m.readExit(rec); err != nil {
		return m.finish(ctx, rec, StatusFailed, nil,
			errors.Wrap(errors.ErrCodeAgentCrash, err, "unreadable exit report"))
	} else if ok {
		return m.classify(ctx, rec, exit)
	}

	now := m.now()
	if rec.Deadline != nil && now.After(*rec.Deadline) {
		if err := killGroup(rec.PID); err != nil {
			m.logger.Warn("could not kill timed-out agent", "agent", rec.ID, "pid", rec.PID, "err", err)
		}
		return m.finish(ctx, rec, StatusTimedOut, nil,
			errors.New(errors.ErrCodeAgentTimeout, "exceeded deadline %s", rec.Deadline.Format(time.RFC3339)))
	}

	switch {
	case rec.PID > 0 && processAlive(rec.PID):
		return rec, nil
	case rec.PID == 0 && rec.Status == StatusPending && now.Sub(rec.StartedAt) < m.cfg.SpawnGrace:
		return rec, nil
	}

	// The supervisor may have written its report between the first check
	// and the liveness probe.
	if exit, ok, _ := m.readExit(rec); ok {
		return m.classify(ctx, rec, exit)
	}
	return m.finish(ctx, rec, StatusFailed, nil,
		errors.New(errors.ErrCodeAgentCrash, "supervisor (pid %d) exited without recording an exit status", rec.PID))
}

func (m *Manager) readExit(rec *Record) (*Exit, bool, error) {
	var exit Exit
	ok, err := stackio.ReadJSON(filepath.Join(m.store.Dir(rec.ID), ExitFile), &exit)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &exit, true, nil
}

func (m *Manager) classify(ctx context.Context, rec *Record, exit *Exit) (*Record, error) {
	code := exit.ExitCode
	rec.ExitCode = &code
	ended := exit.FinishedAt

	switch {
	case exit.TimedOut:
		return m.finish(ctx, rec, StatusTimedOut, &ended,
			errors.New(errors.ErrCodeAgentTimeout, "%s", exit.Error))
	case code != 0:
		return m.finish(ctx, rec, StatusFailed, &ended,
			errors.New(errors.ErrCodeAgentCrash, "worker exited with code %d: %s", code, exit.Error))
	case !stackio.Exists(rec.Findings):
		return m.finish(ctx, rec, StatusFailed, &ended,
			errors.New(errors.ErrCodeAgentCrash, "worker exited 0 without writing %s", filepath.Base(rec.Findings)))
	}

	if m.publish != nil {
		if err := m.publish(ctx, rec); err != nil {
			return m.finish(ctx, rec, StatusFailed, &ended,
				errors.Wrap(errors.ErrCodeAgentCrash, err, "publish findings"))
		}
	}
	return m.finish(ctx, rec, StatusCompleted, &ended, nil)
}

func (m *Manager) finish(ctx context.Context, rec *Record, status Status, ended *time.Time, cause error) (*Record, error) {
	rec.Status = status
	end := m.now().UTC()
	if ended != nil && !ended.IsZero() {
		end = ended.UTC()
	}
	rec.EndedAt = &end
	if cause != nil {
		rec.Error = cause.Error()
	}

	observability.Agent().OnTerminal(ctx, rec.Resource, string(rec.Focus), string(status), rec.Duration(end))
	if status == StatusCompleted {
		m.logger.Info("agent completed", "agent", rec.ID, "resource", rec.Resource)
	} else {
		m.logger.Warn("agent ended", "agent", rec.ID, "resource", rec.Resource, "status", status, "err", rec.Error)
	}
	return rec, m.store.Save(ctx, rec)
}

// Wait blocks until every selected agent is terminal, the timeout elapses
// or ctx ends. It polls at the configured interval and wakes early on
// filesystem events in the agent directories. A timeout is not an error:
// the partial split is returned with TimedOut set. Context cancellation
// returns the partial split together with ctx.Err().
func (m *Manager) Wait(ctx context.Context, req WaitRequest) (*WaitResult, error) {
	ids, err := m.waitTargets(ctx, req.IDs)
	if err != nil {
		return nil, err
	}

	var deadline <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	events, stop := m.watch(ids)
	defer stop()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, err := m.snapshot(ctx, ids)
		if err != nil {
			return nil, err
		}
		if res.Done() {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-deadline:
			res, err := m.snapshot(ctx, ids)
			if err != nil {
				return nil, err
			}
			res.TimedOut = !res.Done()
			return res, nil
		case <-ticker.C:
		case <-events:
		}
	}
}

func (m *Manager) waitTargets(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) > 0 {
		unique := slices.Compact(slices.Sorted(slices.Values(ids)))
		for _, id := range unique {
			if _, err := m.store.Load(ctx, id); err != nil {
				return nil, err
			}
		}
		return unique, nil
	}

	recs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rec := range recs {
		if !rec.Status.Terminal() {
			out = append(out, rec.ID)
		}
	}
	return out, nil
}

func (m *Manager) snapshot(ctx context.Context, ids []string) (*WaitResult, error) {
	res := &WaitResult{Terminal: []*Record{}, NonTerminal: []*Record{}}
	for _, id := range ids {
		rec, err := m.Get(ctx, id)
		if errors.Is(err, errors.ErrCodeNotFound) {
			continue // pruned meanwhile
		}
		if err != nil {
			return nil, err
		}
		if rec.Status.Terminal() {
			res.Terminal = append(res.Terminal, rec)
		} else {
			res.NonTerminal = append(res.NonTerminal, rec)
		}
	}
	return res, nil
}

// watch returns a channel that receives on any change inside the agent
// directories. Without a watcher the channel is nil and Wait relies on
// polling alone.
func (m *Manager) watch(ids []string) (<-chan fsnotify.Event, func()) {
	if len(ids) == 0 {
		return nil, func() {}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Debug("fsnotify unavailable, polling only", "err", err)
		return nil, func() {}
	}
	for _, id := range ids {
		if err := w.Add(m.store.Dir(id)); err != nil {
			m.logger.Debug("cannot watch agent dir", "agent", id, "err", err)
		}
	}
	go func() {
		for range w.Errors {
		}
	}()
	return w.Events, func() { _ = w.Close() }
}

// Cancel stops a non-terminal agent's process group and marks it
// cancelled. Cancelling a terminal agent returns it unchanged.
func (m *Manager) Cancel(ctx context.Context, id string) (*Record, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := terminateGroup(rec.PID); err != nil {
		return rec, fmt.Errorf("signal agent %s: %w", id, err)
	}
	return m.finish(ctx, rec, StatusCancelled, nil, nil)
}

// Logs returns the paths of the agent's captured output.
func (m *Manager) Logs(ctx context.Context, id string) (LogPaths, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return LogPaths{}, err
	}
	return LogPaths{Stdout: rec.Stdout, Stderr: rec.Stderr}, nil
}

// Prune deletes terminal agents that ended more than olderThan ago and
// returns their ids.
func (m *Manager) Prune(ctx context.Context, olderThan time.Duration) ([]string, error) {
	recs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := m.now().Add(-olderThan)
	var removed []string
	for _, rec := range recs {
		if !rec.Status.Terminal() || rec.EndedAt == nil || rec.EndedAt.After(cutoff) {
			continue
		}
		if err := m.store.Remove(ctx, rec.ID); err != nil {
			return removed, err
		}
		removed = append(removed, rec.ID)
	}
	return removed, nil
}
