package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/property-verifier/internal/common"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ErrToolMissing means a poppler or tesseract binary is not on PATH.
var ErrToolMissing = errors.New("ocr tool not installed")

// packages that ship each binary, for the install hint.
var toolPackages = map[string]string{
	"pdftotext": "poppler-utils",
	"pdftoppm":  "poppler-utils",
	"tesseract": "tesseract-ocr",
}

const maxLoggedStderr = 4 << 10

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	tool := filepath.Base(name)

	switch {
	case errors.Is(err, exec.ErrNotFound):
		pkg := toolPackages[tool]
		if pkg == "" {
			pkg = tool
		}
		r.logger.Error("ocr.tool_missing", "cmd", tool, "package", pkg)
		return nil, nil, fmt.Errorf("%w: %s (install %s)", ErrToolMissing, tool, pkg)
	case err != nil:
		hash, _ := common.ContentHashFromContext(ctx)
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.logger.Error("ocr.exec_failed",
			"cmd", tool,
			"sha256", hash,
			"exit_code", exitCode,
			"elapsed_ms", elapsed,
			"error", err,
			"stderr", tail(stderr.Bytes(), maxLoggedStderr),
		)
	default:
		r.logger.Debug("ocr.exec_ok",
			"cmd", tool,
			"args", args,
			"elapsed_ms", elapsed,
			"stdout_bytes", stdout.Len(),
		)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// tail keeps the last n bytes; tesseract and poppler print the cause last.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(bytes.ToValidUTF8(b[len(b)-n:], nil))
}
