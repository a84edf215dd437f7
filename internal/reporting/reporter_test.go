package reporting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewRequiresLogger(t *testing.T) {
	r, err := New("json", "stdout", nil)
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestNewStdout(t *testing.T) {
	logger := zaptest.NewLogger(t)

	for _, path := range []string{"", "stdout"} {
		r, err := New("sarif", path, logger)
		require.NoError(t, err, path)
		require.NotNil(t, r)
		assert.NoError(t, r.Close(), "closing a stdout reporter must not close stdout")
	}
}

func TestNewFileTargets(t *testing.T) {
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	sarifPath := filepath.Join(dir, "report.sarif")
	r, err := New("sarif", sarifPath, logger)
	require.NoError(t, err)
	_, ok := r.(*SARIFReporter)
	assert.True(t, ok)
	require.NoError(t, r.Close())
	assert.FileExists(t, sarifPath)

	jsonPath := filepath.Join(dir, "report.json")
	r, err = New("json", jsonPath, logger)
	require.NoError(t, err)
	_, ok = r.(*JSONReporter)
	assert.True(t, ok)
	require.NoError(t, r.Close())
	assert.FileExists(t, jsonPath)
}

func TestNewUnsupportedFormat(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "report.xml")

	r, err := New("xml", path, logger)
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "unsupported output format")

	// The created file handle must not leak open on the error path.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "the target file is created before format validation")
}

func TestNewUnwritablePath(t *testing.T) {
	logger := zaptest.NewLogger(t)
	r, err := New("json", filepath.Join(t.TempDir(), "missing", "report.json"), logger)
	assert.Error(t, err)
	assert.Nil(t, r)
}
