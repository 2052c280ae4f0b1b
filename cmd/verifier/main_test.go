package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDBHealthSQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", filepath.Join(t.TempDir(), "health.db"))

	out, err := execute(t, "dbhealth")
	require.NoError(t, err)
	assert.Contains(t, out, "DB health: OK")
}

func TestDBHealthDisabled(t *testing.T) {
	t.Setenv("DB_DRIVER", "none")

	out, err := execute(t, "dbhealth")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := execute(t, "dbhealth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestAnalyzeRejectsInput(t *testing.T) {
	t.Setenv("DB_DRIVER", "none")

	_, err := execute(t, "analyze", "notes.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only PDF, JPG and PNG")

	_, err = execute(t, "analyze", "deed.pdf", "--type", "passport")
	require.Error(t, err)

	_, err = execute(t, "analyze")
	require.Error(t, err)
}

func TestOCRRejectsInput(t *testing.T) {
	t.Setenv("DB_DRIVER", "none")

	_, err := execute(t, "ocr", "scan.heic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only PDF, JPG and PNG")
}
