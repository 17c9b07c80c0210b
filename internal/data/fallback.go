package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"TaskSync/internal/conf"
	syncerrors "TaskSync/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// maxStderrBytes bounds how much fallback stderr is carried into errors
// and logs.
const maxStderrBytes = 2048

// CommandRunner executes the configured local fallback command (the task
// CLI) when the primary API path is unavailable.
type CommandRunner struct {
	command []string
	logger  *log.Helper
}

// NewCommandRunner creates the runner from bootstrap config.
func NewCommandRunner(bc *conf.Bootstrap, logger log.Logger) *CommandRunner {
	return &CommandRunner{
		command: bc.Sync.FallbackCommand,
		logger:  log.NewHelper(logger),
	}
}

// Run executes the fallback command, bounded by ctx. A non-zero exit,
// spawn failure, or deadline all surface as a FallbackError carrying the
// exit code and a stderr excerpt.
func (r *CommandRunner) Run(ctx context.Context) error {
	if len(r.command) == 0 {
		return &syncerrors.FallbackError{
			Command:     "",
			ExitCode:    -1,
			OriginalErr: fmt.Errorf("no fallback command configured"),
		}
	}

	display := strings.Join(r.command, " ")

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Infow("msg", "running fallback sync command", "command", display)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	// Prefer the context error so a timeout reads as a timeout, not as
	// "signal: killed".
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	excerpt := stderr.String()
	if len(excerpt) > maxStderrBytes {
		excerpt = excerpt[:maxStderrBytes]
	}

	r.logger.Errorw("msg", "fallback sync command failed",
		"command", display,
		"exit_code", exitCode,
		"stderr", excerpt,
		"error", err.Error())

	return &syncerrors.FallbackError{
		Command:     display,
		ExitCode:    exitCode,
		Stderr:      excerpt,
		OriginalErr: err,
	}
}
