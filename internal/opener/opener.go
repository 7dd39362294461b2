// Package opener launches files with the host's default application.
package opener

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("opening files is disabled on this server")

// Opener opens an absolute path on the host.
type Opener interface {
	Open(ctx context.Context, absPath string) error
}

// Func adapts a function to Opener.
type Func func(ctx context.Context, absPath string) error

func (f Func) Open(ctx context.Context, absPath string) error { return f(ctx, absPath) }

// Disabled refuses every request. Headless servers use it.
type Disabled struct{}

func (Disabled) Open(context.Context, string) error { return ErrDisabled }

// Exec runs the platform's "open with default application" command.
type Exec struct {
	goos string
}

// NewExec returns an Exec for the running platform.
func NewExec() *Exec {
	return &Exec{goos: runtime.GOOS}
}

// Command returns the argv used to open absPath.
func (e *Exec) Command(absPath string) []string {
	switch e.goos {
	case "windows":
		// Not cmd /c start: cmd.exe would treat & and | in the path as operators.
		return []string{"rundll32", "url.dll,FileProtocolHandler", absPath}
	case "darwin":
		return []string{"open", absPath}
	default:
		return []string{"xdg-open", absPath}
	}
}

// Open starts the command and waits for it to hand off to the desktop.
func (e *Exec) Open(ctx context.Context, absPath string) error {
	argv := e.Command(absPath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, out)
	}
	return nil
}
