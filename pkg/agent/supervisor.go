package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	stackio "github.com/matzehuels/stackscan/pkg/io"
)

// workerWaitDelay bounds how long the supervisor waits for a killed worker
// to release its I/O.
const workerWaitDelay = 5 * time.Second

// RunSupervisor executes the worker described by dir/spec.json and records
// the outcome in dir/exit.json. It returns an error only when spec.json
// cannot be read or exit.json cannot be written; worker failures are
// recorded, not returned.
func RunSupervisor(ctx context.Context, dir string) error {
	var spec Spec
	found, err := stackio.ReadJSON(filepath.Join(dir, SpecFile), &spec)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no %s in %s", SpecFile, dir)
	}

	exit := run(ctx, &spec)
	if err := stackio.WriteJSON(filepath.Join(dir, ExitFile), exit); err != nil {
		return fmt.Errorf("record exit status: %w", err)
	}
	return nil
}

func run(ctx context.Context, spec *Spec) *Exit {
	exit := &Exit{StartedAt: time.Now().UTC()}
	finish := func(code int, msg string) *Exit {
		exit.ExitCode = code
		exit.Error = msg
		exit.FinishedAt = time.Now().UTC()
		return exit
	}

	if len(spec.Command) == 0 {
		return finish(-1, "empty worker command")
	}

	runCtx := ctx
	if spec.Deadline != nil {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, *spec.Deadline)
		defer cancel()
	}

	stdout, err := os.Create(spec.Stdout)
	if err != nil {
		return finish(-1, fmt.Sprintf("open stdout log: %v", err))
	}
	defer stdout.Close()
	stderr, err := os.Create(spec.Stderr)
	if err != nil {
		return finish(-1, fmt.Sprintf("open stderr log: %v", err))
	}
	defer stderr.Close()

	cmd := exec.CommandContext(runCtx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = workerWaitDelay

	err = cmd.Run()
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		exit.TimedOut = true
		return finish(-1, fmt.Sprintf("deadline %s exceeded", spec.Deadline.Format(time.RFC3339)))
	case ctx.Err() != nil:
		return finish(-1, "cancelled")
	case err == nil:
		return finish(0, "")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return finish(exitErr.ExitCode(), err.Error())
	}
	// The worker never started (missing binary, bad work dir).
	return finish(127, err.Error())
}
