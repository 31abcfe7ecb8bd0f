package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// SupervisorLog receives the supervisor's own output, separate from the
// worker's stdout.log and stderr.log.
const SupervisorLog = "supervisor.log"

// Launcher starts the supervisor for a prepared agent directory and
// returns its PID. It must not wait for the supervisor to finish.
type Launcher interface {
	Launch(ctx context.Context, dir string) (pid int, err error)
}

// ExecLauncher runs Executable with Args followed by "--dir <dir>" as a
// detached process group leader.
type ExecLauncher struct {
	Executable string
	Args       []string
	// Env is appended to the current environment.
	Env []string
}

// NewExecLauncher launches the running binary's hidden "agent exec"
// command.
func NewExecLauncher() (*ExecLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecLauncher{Executable: exe, Args: []string{"agent", "exec"}}, nil
}

// Launch implements Launcher. ctx only bounds the start itself; the
// supervisor outlives it.
func (l *ExecLauncher) Launch(ctx context.Context, dir string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logFile, err := os.OpenFile(filepath.Join(dir, SupervisorLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open supervisor log: %w", err)
	}

	args := append(append([]string{}, l.Args...), "--dir", dir)
	cmd := exec.Command(l.Executable, args...)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.SysProcAttr = detach()

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("start supervisor: %w", err)
	}
	// Reap the child if it exits while this process is still alive, so a
	// finished supervisor never lingers as a zombie that passes the
	// liveness check.
	go func() {
		_ = cmd.Wait()
	}()
	return cmd.Process.Pid, logFile.Close()
}

var _ Launcher = (*ExecLauncher)(nil)
