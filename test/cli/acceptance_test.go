// Package acceptance runs devcell end to end with testscript.
//
// Scripts under testdata/root and testdata/update need no daemon. Scripts
// under testdata/status talk to the local Docker daemon and are skipped
// when it is unreachable.
//
// Run with: go test ./test/cli/... -v
package acceptance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moby/moby/client"
	"github.com/rogpeppe/go-internal/testscript"

	"github.com/schmitthub/devcell/internal/devcell"
)

const envScript = "DEVCELL_ACCEPTANCE_SCRIPT"

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"devcell": devcell.Main,
	}))
}

// randomInstance returns an instance name that keeps a script's container
// and tags apart from a real installation.
func randomInstance() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "acceptance-" + hex.EncodeToString(b)
}

func isDockerAvailable() bool {
	c, err := client.New(client.FromEnv)
	if err != nil {
		return false
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = c.Ping(ctx, client.PingOptions{})
	return err == nil
}

func setup(e *testscript.Env) error {
	e.Setenv("DEVCELL_CONFIG_DIR", filepath.Join(e.WorkDir, ".config"))
	e.Setenv("DEVCELL_STATE_DIR", filepath.Join(e.WorkDir, ".state"))
	e.Setenv("DEVCELL_INSTANCE", randomInstance())
	e.Setenv("DEVCELL_NO_UPDATE_NOTIFIER", "1")
	e.Setenv("NO_COLOR", "1")
	for _, key := range []string{"DOCKER_HOST", "DOCKER_CONFIG", "DOCKER_CERT_PATH", "DOCKER_TLS_VERIFY"} {
		if v, ok := os.LookupEnv(key); ok {
			e.Setenv(key, v)
		}
	}
	return nil
}

func runCategory(t *testing.T, category string, needsDocker bool) {
	if needsDocker && !isDockerAvailable() {
		t.Skip("Docker not available")
	}

	pattern := filepath.Join("testdata", category, "*.txtar")
	if s := os.Getenv(envScript); s != "" {
		pattern = filepath.Join("testdata", category, s)
	}
	files, _ := filepath.Glob(pattern)
	if len(files) == 0 {
		t.Skipf("No test scripts found matching %s", pattern)
	}

	testscript.Run(t, testscript.Params{
		Files:               files,
		Setup:               setup,
		UpdateScripts:       os.Getenv("UPDATE_GOLDEN") == "1",
		RequireExplicitExec: true,
		RequireUniqueNames:  true,
	})
}

func TestRoot(t *testing.T) {
	runCategory(t, "root", false)
}

func TestUpdate(t *testing.T) {
	runCategory(t, "update", false)
}

func TestStatus(t *testing.T) {
	runCategory(t, "status", true)
}
