package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeFlow(t *testing.T) {
	home := t.TempDir()
	binaryPath := buildBinary(t)

	stdout, stderr, err := runTrafficCop(t, binaryPath, home,
		"--user", "user-1",
		"session", "create",
		"--dimension", "content",
		"--dimension", "insights",
	)
	require.NoError(t, err, "stderr: %s", stderr)

	var session struct{ ID string }
	require.NoError(t, json.Unmarshal([]byte(stdout), &session))
	require.NotEmpty(t, session.ID)

	_, stderr, err = runTrafficCop(t, binaryPath, home,
		"session", "update", session.ID,
		"--key", "draft",
		"--value", `{"title":"hello"}`,
		"--dimension", "content",
	)
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err = runTrafficCop(t, binaryPath, home,
		"dimension", "coordinate", session.ID,
		"--type", "state_sync",
		"--payload", `{"keys":["draft"],"source_dimension":"content"}`,
	)
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "\"Type\": \"state_sync\"")

	stdout, stderr, err = runTrafficCop(t, binaryPath, home,
		"state", "get", session.ID, "--key", "draft", "--dimension", "insights")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "\"title\": \"hello\"")

	stdout, stderr, err = runTrafficCop(t, binaryPath, home, "health", "service")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "status: healthy")
	assert.FileExists(t, filepath.Join(home, ".trafficcop", "trafficcop.db"))
}

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "trafficcop-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/trafficcop")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build trafficcop binary: %s", string(output))
	return binaryPath
}

func runTrafficCop(t *testing.T, binaryPath, home string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "HOME="+home, "TRAFFICCOP_STORE=sqlite", "TRAFFICCOP_DB_PATH=", "TRAFFICCOP_OTEL_ENABLED=false")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}
