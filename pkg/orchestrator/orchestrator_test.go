package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kballard/go-shellquote"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/graph"
	"github.com/matzehuels/stackscan/pkg/schedule"
)

// TestHelperSupervisor stands in for "stackscan agent exec" when the
// orchestrator tests spawn agents.
func TestHelperSupervisor(t *testing.T) {
	if os.Getenv("STACKSCAN_WANT_SUPERVISOR") != "1" {
		return
	}
	var dir string
	for i, a := range os.Args {
		if a == "--dir" && i+1 < len(os.Args) {
			dir = os.Args[i+1]
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := agent.RunSupervisor(ctx, dir)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(0)
}

// worker fails for resources named "broken*" and otherwise emits one
// finding. Every invocation appends the resource name to the spawn log.
const worker = `
echo "$STACKSCAN_RESOURCE" >> %s
case "$STACKSCAN_RESOURCE" in
broken*) echo "boom" >&2; exit 3 ;;
esac
printf '[{"severity":"high","category":"security","description":"issue in %%s"}]' "$STACKSCAN_RESOURCE" > "$STACKSCAN_FINDINGS_FILE"
`

type fixture struct {
	orch     *Orchestrator
	state    string
	root     string
	spawnLog string
}

// spawns returns the resource names the worker ran for, in order.
func (f *fixture) spawns(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.spawnLog)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Fields(string(data))
}

// newFixture creates one resource directory per entry of gomods, holding
// the given go.mod content, and an orchestrator over them.
func newFixture(t *testing.T, gomods map[string]string, withCache bool) *fixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("agent tests need a unix shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	f := &fixture{state: t.TempDir(), root: t.TempDir()}
	f.spawnLog = filepath.Join(t.TempDir(), "spawns.log")

	script := filepath.Join(t.TempDir(), "worker.sh")
	body := fmt.Sprintf(worker, shellquote.Join(f.spawnLog))
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}

	var resources []Resource
	for _, name := range slices.Sorted(maps.Keys(gomods)) {
		dir := filepath.Join(f.root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(gomods[name]), 0o644); err != nil {
			t.Fatal(err)
		}
		resources = append(resources, Resource{Name: name, Path: dir})
	}

	logger := log.New(io.Discard)
	var results *cache.Results
	if withCache {
		fc, err := cache.NewFileCache(filepath.Join(f.state, "cache"))
		if err != nil {
			t.Fatal(err)
		}
		results = cache.NewResults(fc, logger)
	}

	store, err := agent.NewFileStore(AgentsDir(f.state), logger)
	if err != nil {
		t.Fatal(err)
	}
	commands := agent.Commands{Default: shellquote.Join("sh", script)}
	launcher := &agent.ExecLauncher{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperSupervisor$", "--"},
		Env:        []string{"STACKSCAN_WANT_SUPERVISOR=1"},
	}
	mgr := agent.NewManager(store, launcher, agent.Config{
		Commands:       commands,
		DefaultTimeout: time.Minute,
		PollInterval:   50 * time.Millisecond,
	}, agent.WithLogger(logger), agent.WithPublisher(NewPublisher(FindingsDir(f.state), results, store, logger)))

	f.orch, err = New(Config{
		StateDir:        f.state,
		Resources:       resources,
		AnalyzerVersion: "test",
		Commands:        commands,
	}, mgr, results, logger)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func gomod(module string, requires ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n\ngo 1.22\n", module)
	for _, r := range requires {
		fmt.Fprintf(&b, "\nrequire %s v1.0.0\n", r)
	}
	return b.String()
}

func runAll(t *testing.T, f *fixture, req AnalyzeAllRequest) *RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	res, err := f.orch.AnalyzeAll(ctx, req)
	if err != nil {
		t.Fatalf("AnalyzeAll() error = %v", err)
	}
	return res
}

func outcome(t *testing.T, res *RunResult, name string) ResourceOutcome {
	t.Helper()
	for _, oc := range res.Outcomes {
		if oc.Resource == name {
			return oc
		}
	}
	t.Fatalf("no outcome for %s in %+v", name, res.Outcomes)
	return ResourceOutcome{}
}

func TestAnalyzeAllDependencyOrder(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a": gomod("example.com/a"),
		"b": gomod("example.com/b", "example.com/a"),
		"c": gomod("example.com/c", "example.com/a"),
	}, false)

	res := runAll(t, f, AnalyzeAllRequest{RespectDeps: true})

	want := [][]string{{"a"}, {"b", "c"}}
	if len(res.Levels) != len(want) {
		t.Fatalf("Levels = %v, want %v", res.Levels, want)
	}
	for i := range want {
		if !slices.Equal(res.Levels[i], want[i]) {
			t.Fatalf("Levels = %v, want %v", res.Levels, want)
		}
	}
	for _, name := range []string{"a", "b", "c"} {
		if oc := outcome(t, res, name); oc.Status != string(agent.StatusCompleted) || oc.Findings != 1 {
			t.Errorf("outcome(%s) = %+v", name, oc)
		}
	}
	if got := f.spawns(t); len(got) != 3 || got[0] != "a" {
		t.Errorf("spawn order = %v, want a first", got)
	}

	status, err := f.orch.Status(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	recs := make(map[string]*agent.Record)
	for _, rec := range status.Agents {
		recs[rec.Resource] = rec
	}
	a := recs["a"]
	if a == nil || a.EndedAt == nil {
		t.Fatalf("record of a = %+v", a)
	}
	for _, name := range []string{"b", "c"} {
		if rec := recs[name]; rec == nil || rec.StartedAt.Before(*a.EndedAt) {
			t.Errorf("%s started before a ended: %+v", name, rec)
		}
	}

	report, err := f.orch.Findings(context.Background(), FindingsQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(report.Resources, []string{"a", "b", "c"}) || len(report.Findings) != 3 {
		t.Errorf("Findings() = %+v", report)
	}
}

func TestAnalyzeAllCycle(t *testing.T) {
	f := newFixture(t, map[string]string{
		"x": gomod("example.com/x", "example.com/y"),
		"y": gomod("example.com/y", "example.com/x"),
	}, false)

	res, err := f.orch.AnalyzeAll(context.Background(), AnalyzeAllRequest{RespectDeps: true})

	var cycErr *schedule.CircularDependencyError
	if !stderrors.As(err, &cycErr) {
		t.Fatalf("AnalyzeAll() error = %v, want CircularDependencyError", err)
	}
	if !errors.Is(err, errors.ErrCodeCircularDependency) {
		t.Errorf("error code = %s", errors.GetCode(err))
	}
	if !slices.Contains(cycErr.Cycle, "x") || !slices.Contains(cycErr.Cycle, "y") {
		t.Errorf("Cycle = %v, want x and y", cycErr.Cycle)
	}
	if res == nil || len(res.Outcomes) != 0 {
		t.Errorf("result = %+v, want no outcomes", res)
	}
	if got := f.spawns(t); len(got) != 0 {
		t.Errorf("workers ran for %v", got)
	}
	recs, err := f.orch.Agents().List(context.Background())
	if err != nil || len(recs) != 0 {
		t.Errorf("List() = %v, %v; want no agents", recs, err)
	}

	artifact, err := graph.ReadArtifact(filepath.Join(f.state, graph.ArtifactFile))
	if err != nil || artifact == nil || len(artifact.Cycle) == 0 {
		t.Errorf("artifact = %+v, %v; want cycle recorded", artifact, err)
	}
}

func TestAnalyzeAllIgnoringDeps(t *testing.T) {
	f := newFixture(t, map[string]string{
		"x": gomod("example.com/x", "example.com/y"),
		"y": gomod("example.com/y", "example.com/x"),
	}, false)

	res := runAll(t, f, AnalyzeAllRequest{RespectDeps: false})
	if len(res.Levels) != 1 || !slices.Equal(res.Levels[0], []string{"x", "y"}) {
		t.Errorf("Levels = %v, want one level", res.Levels)
	}
	if len(res.Cycle) == 0 {
		t.Error("cycle not reported")
	}
	if c := res.Counts()[string(agent.StatusCompleted)]; c != 2 {
		t.Errorf("completed = %d, want 2", c)
	}
}

func TestAnalyzeAllFailedDependency(t *testing.T) {
	f := newFixture(t, map[string]string{
		"broken": gomod("example.com/broken"),
		"app":    gomod("example.com/app", "example.com/broken"),
	}, false)

	res := runAll(t, f, AnalyzeAllRequest{RespectDeps: true})

	if oc := outcome(t, res, "broken"); oc.Status != string(agent.StatusFailed) || oc.Error == "" {
		t.Errorf("broken outcome = %+v, want failed with error", oc)
	}
	if oc := outcome(t, res, "app"); oc.Status != string(agent.StatusCompleted) {
		t.Errorf("app outcome = %+v, want completed despite failed dependency", oc)
	}
	if _, err := os.Stat(findings.SetPath(FindingsDir(f.state), "broken")); !os.IsNotExist(err) {
		t.Errorf("finding set for failed resource exists: %v", err)
	}

	report, err := f.orch.Findings(context.Background(), FindingsQuery{Resource: "broken"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("findings for broken = %v", report.Findings)
	}
}

func TestAnalyzeAllCache(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a": gomod("example.com/a"),
		"b": gomod("example.com/b", "example.com/a"),
	}, true)

	runAll(t, f, AnalyzeAllRequest{RespectDeps: true})
	if got := f.spawns(t); len(got) != 2 {
		t.Fatalf("first run spawned %v", got)
	}

	second := runAll(t, f, AnalyzeAllRequest{RespectDeps: true})
	for _, name := range []string{"a", "b"} {
		if oc := outcome(t, second, name); oc.Status != OutcomeCached || oc.Findings != 1 {
			t.Errorf("second run %s = %+v, want cached", name, oc)
		}
	}
	if got := f.spawns(t); len(got) != 2 {
		t.Errorf("second run spawned again: %v", got)
	}
	set, err := findings.ReadFile(findings.SetPath(FindingsDir(f.state), "b"))
	if err != nil || set.Source != findings.SourceCache {
		t.Errorf("published set = %+v, %v; want source cache", set, err)
	}

	if err := os.WriteFile(filepath.Join(f.root, "b", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	third := runAll(t, f, AnalyzeAllRequest{RespectDeps: true})
	if oc := outcome(t, third, "a"); oc.Status != OutcomeCached {
		t.Errorf("unchanged a = %+v, want cached", oc)
	}
	if oc := outcome(t, third, "b"); oc.Status != string(agent.StatusCompleted) {
		t.Errorf("changed b = %+v, want re-analyzed", oc)
	}
	if got := f.spawns(t); !slices.Equal(got, []string{"a", "b", "b"}) {
		t.Errorf("spawns = %v", got)
	}

	// A different focus is a different fingerprint.
	fourth := runAll(t, f, AnalyzeAllRequest{RespectDeps: true, Focus: agent.FocusSecurity})
	if c := fourth.Counts()[OutcomeCached]; c != 0 {
		t.Errorf("security focus served %d from cache", c)
	}
}

func TestAnalyzeAllDepsOnly(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a": gomod("example.com/a"),
		"b": gomod("example.com/b", "example.com/a"),
		"c": gomod("example.com/c"),
	}, false)

	res := runAll(t, f, AnalyzeAllRequest{RespectDeps: true, DepsOnly: true})
	if len(res.Levels) != 1 || !slices.Equal(res.Levels[0], []string{"a"}) {
		t.Errorf("Levels = %v, want [[a]]", res.Levels)
	}
	if got := f.spawns(t); !slices.Equal(got, []string{"a"}) {
		t.Errorf("spawns = %v", got)
	}
}

func TestAnalyzeReplacesFindings(t *testing.T) {
	f := newFixture(t, map[string]string{
		"api":       gomod("example.com/api"),
		"broken-db": gomod("example.com/db"),
	}, false)
	dir := FindingsDir(f.state)

	stale := &findings.Set{Resource: "api", Findings: []findings.Finding{
		{Severity: findings.Critical, Category: "old", Description: "stale"},
		{Severity: findings.Low, Category: "old", Description: "stale"},
	}}
	if err := findings.WriteSet(dir, stale); err != nil {
		t.Fatal(err)
	}

	res, err := f.orch.Analyze(context.Background(), AnalyzeRequest{Resource: "api", Focus: agent.FocusQuality})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Agent.Status != agent.StatusCompleted || res.Findings == nil {
		t.Fatalf("Analyze() = %+v", res)
	}
	got, err := findings.ReadFile(findings.SetPath(dir, "api"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Findings) != 1 || got.Findings[0].Description != "issue in api" || got.Focus != "quality" {
		t.Errorf("set after re-analysis = %+v", got)
	}

	// A failed re-analysis leaves no set behind, not the previous one.
	if err := findings.WriteSet(dir, &findings.Set{Resource: "broken-db", Findings: stale.Findings}); err != nil {
		t.Fatal(err)
	}
	res, err = f.orch.Analyze(context.Background(), AnalyzeRequest{Resource: "broken-db"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Agent.Status != agent.StatusFailed {
		t.Errorf("status = %s, want failed", res.Agent.Status)
	}
	if _, err := os.Stat(findings.SetPath(dir, "broken-db")); !os.IsNotExist(err) {
		t.Errorf("stale set survived a failed re-analysis: %v", err)
	}
}

func TestAnalyzeBackground(t *testing.T) {
	f := newFixture(t, map[string]string{"api": gomod("example.com/api")}, false)

	res, err := f.orch.Analyze(context.Background(), AnalyzeRequest{Resource: "api", Background: true, ID: "api-bg"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.Agent == nil || res.Agent.ID != "api-bg" {
		t.Fatalf("Agent = %+v", res.Agent)
	}

	wr, err := f.orch.Wait(context.Background(), WaitRequest{All: true, Timeout: 30 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if wr.TimedOut || len(wr.Terminal) != 1 || wr.Terminal[0].Status != agent.StatusCompleted {
		t.Errorf("Wait() = %+v", wr)
	}
}

func TestFindingsReconcilesFinishedAgents(t *testing.T) {
	f := newFixture(t, map[string]string{"api": gomod("example.com/api")}, true)

	if _, err := f.orch.Analyze(context.Background(), AnalyzeRequest{Resource: "api", Background: true, ID: "api-bg"}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	// Wait for the supervisor to record the exit without going through any
	// reconciling call.
	exitFile := filepath.Join(AgentsDir(f.state), "api-bg", agent.ExitFile)
	deadline := time.Now().Add(30 * time.Second)
	for {
		if _, err := os.Stat(exitFile); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker did not exit")
		}
		time.Sleep(20 * time.Millisecond)
	}

	report, err := f.orch.Findings(context.Background(), FindingsQuery{})
	if err != nil {
		t.Fatalf("Findings() error = %v", err)
	}
	if len(report.Findings) != 1 || report.Findings[0].Resource != "api" {
		t.Fatalf("Findings() = %+v, want the finished agent's finding", report.Findings)
	}

	stats, err := f.orch.CacheStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("cache entries = %d, want 1 after reconciliation", stats.Entries)
	}
}

func TestAnalyzeInvalidRequests(t *testing.T) {
	f := newFixture(t, map[string]string{"api": gomod("example.com/api")}, false)

	tests := []struct {
		name string
		req  AnalyzeRequest
		code errors.Code
	}{
		{"unknown resource", AnalyzeRequest{Resource: "nope"}, errors.ErrCodeNotFound},
		{"unknown focus", AnalyzeRequest{Resource: "api", Focus: "speed"}, errors.ErrCodeInvalidFocus},
		{"bad agent id", AnalyzeRequest{Resource: "api", ID: "../x"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Analyze(context.Background(), tt.req)
			if !errors.Is(err, tt.code) {
				t.Errorf("Analyze() error = %v, want %s", err, tt.code)
			}
		})
	}
	if got := f.spawns(t); len(got) != 0 {
		t.Errorf("workers ran for %v", got)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, map[string]string{
		"api": gomod("example.com/api"),
		"web": gomod("example.com/web"),
	}, true)
	if _, err := f.orch.Analyze(context.Background(), AnalyzeRequest{Resource: "api"}); err != nil {
		t.Fatal(err)
	}

	report, err := f.orch.Status(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Agents != nil {
		t.Error("agents included without being asked for")
	}
	if report.Counts[agent.StatusCompleted] != 1 || report.Running() != 0 {
		t.Errorf("Counts = %v", report.Counts)
	}
	if report.Cache == nil || report.Cache.Entries != 1 {
		t.Errorf("Cache = %+v, want one entry", report.Cache)
	}
	byName := make(map[string]ResourceStatus)
	for _, rs := range report.Resources {
		byName[rs.Name] = rs
	}
	if api := byName["api"]; api.Findings != 1 || api.Status != agent.StatusCompleted || api.Source != findings.SourceAgent {
		t.Errorf("api = %+v", api)
	}
	if web := byName["web"]; web.Findings != -1 || web.LastAgent != "" {
		t.Errorf("web = %+v", web)
	}

	n, err := f.orch.CacheClear(context.Background())
	if err != nil || n != 1 {
		t.Errorf("CacheClear() = %d, %v; want 1", n, err)
	}
	stats, err := f.orch.CacheStatus(context.Background())
	if err != nil || stats.Entries != 0 {
		t.Errorf("CacheStatus() = %+v, %v", stats, err)
	}
}

func TestGraph(t *testing.T) {
	state := t.TempDir()
	root := t.TempDir()
	for name, content := range map[string]string{
		"a": gomod("example.com/a"),
		"b": gomod("example.com/b", "example.com/a", "github.com/external/lib"),
	} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, name, "go.mod"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := agent.NewFileStore(AgentsDir(state), nil)
	if err != nil {
		t.Fatal(err)
	}
	o, err := New(Config{
		StateDir:  state,
		Resources: []Resource{{Name: "b", Path: filepath.Join(root, "b")}, {Name: "a", Path: filepath.Join(root, "a")}},
	}, agent.NewManager(store, nil, agent.Config{}), nil, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	a, err := o.Graph(context.Background())
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if len(a.Edges) != 1 || a.Edges[0] != (graph.ArtifactEdge{From: "b", To: "a", Via: "example.com/a"}) {
		t.Errorf("Edges = %+v", a.Edges)
	}
	if len(a.Levels) != 2 || a.Levels[0][0] != "a" {
		t.Errorf("Levels = %v", a.Levels)
	}
	if _, err := os.Stat(filepath.Join(state, graph.ArtifactFile)); !os.IsNotExist(err) {
		t.Errorf("Graph() wrote the artifact: stat err = %v", err)
	}
	if a.Stats.Resources != 2 || a.Stats.Levels != 2 || a.Stats.MostDepended != "a" {
		t.Errorf("Stats = %+v", a.Stats)
	}

	if _, err := o.Plan(context.Background(), PlanOptions{Persist: true}); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(state, graph.ArtifactFile)); err != nil {
		t.Errorf("Plan(Persist) did not write the artifact: %v", err)
	}
	if got := o.Resources(); got[0].Name != "b" || !filepath.IsAbs(got[0].Path) {
		t.Errorf("Resources() = %+v", got)
	}
}

func TestNewValidation(t *testing.T) {
	store, err := agent.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	mgr := agent.NewManager(store, nil, agent.Config{})
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  Config
		mgr  *agent.Manager
		code errors.Code
	}{
		{"no state dir", Config{}, mgr, errors.ErrCodeInvalidInput},
		{"no manager", Config{StateDir: dir}, nil, errors.ErrCodeInvalidInput},
		{"bad name", Config{StateDir: dir, Resources: []Resource{{Name: "../x", Path: dir}}}, mgr, errors.ErrCodeInvalidInput},
		{"duplicate", Config{StateDir: dir, Resources: []Resource{{Name: "a", Path: dir}, {Name: "a", Path: dir}}}, mgr, errors.ErrCodeInvalidInput},
		{"no path", Config{StateDir: dir, Resources: []Resource{{Name: "a"}}}, mgr, errors.ErrCodeInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.mgr, nil, nil)
			if !errors.Is(err, tt.code) {
				t.Errorf("New() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestDependedUpon(t *testing.T) {
	dependents := map[string][]string{"a": {"b"}, "b": {"c"}}
	levels := []schedule.Level{{"a", "x"}, {"b", "y"}, {"c"}}

	got := dependedUpon(levels, func(name string) []string { return dependents[name] })
	want := []schedule.Level{{"a"}, {"b"}}
	if len(got) != len(want) {
		t.Fatalf("dependedUpon() = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("level %d = %v, want %v", i, got[i], want[i])
		}
	}
}
