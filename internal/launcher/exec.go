package launcher

import (
	"context"
	"errors"
	"os/exec"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

// ErrNoTerminal is returned for terminal targets when no terminal emulator
// is configured.
var ErrNoTerminal = errors.New("no terminal configured")

// ExecStarter starts targets as child processes. Terminal targets run as
// "<Terminal> -e <args...>".
type ExecStarter struct {
	Terminal string
}

// Start starts the target and reaps it in the background. The process is not
// tied to ctx; it outlives the request that started it.
func (s ExecStarter) Start(_ context.Context, target catalog.Target) (int, error) {
	args := target.Args
	if len(args) == 0 {
		return 0, errors.New("empty command")
	}
	if target.Terminal {
		if s.Terminal == "" {
			return 0, ErrNoTerminal
		}
		args = append([]string{s.Terminal, "-e"}, args...)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = target.Dir
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() {
		_ = cmd.Wait()
	}()
	return pid, nil
}
