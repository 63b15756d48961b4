package buildkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/devcell/internal/docker"
)

func TestToSolveOpt_DefaultDockerfile(t *testing.T) {
	solveOpt, err := toSolveOpt(docker.BuildOptions{ContextDir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "Dockerfile", solveOpt.FrontendAttrs["filename"])
	assert.Equal(t, "dockerfile.v0", solveOpt.Frontend)
	assert.Contains(t, solveOpt.LocalMounts, "context")
	assert.Contains(t, solveOpt.LocalMounts, "dockerfile")
}

func TestToSolveOpt_ArgsAndLabels(t *testing.T) {
	v := "3.1.4"
	solveOpt, err := toSolveOpt(docker.BuildOptions{
		ContextDir: t.TempDir(),
		BuildArgs:  map[string]*string{"DEVCELL_VERSION": &v, "UNSET": nil},
		Labels:     map[string]string{docker.LabelManaged: "true"},
	})
	require.NoError(t, err)

	assert.Equal(t, "3.1.4", solveOpt.FrontendAttrs["build-arg:DEVCELL_VERSION"])
	assert.NotContains(t, solveOpt.FrontendAttrs, "build-arg:UNSET")
	assert.Equal(t, "true", solveOpt.FrontendAttrs["label:"+docker.LabelManaged])
}

func TestToSolveOpt_NoCache(t *testing.T) {
	solveOpt, err := toSolveOpt(docker.BuildOptions{ContextDir: t.TempDir(), NoCache: true})
	require.NoError(t, err)
	v, ok := solveOpt.FrontendAttrs["no-cache"]
	assert.True(t, ok)
	assert.Empty(t, v)

	solveOpt, err = toSolveOpt(docker.BuildOptions{ContextDir: t.TempDir()})
	require.NoError(t, err)
	assert.NotContains(t, solveOpt.FrontendAttrs, "no-cache")
}

func TestToSolveOpt_ExportTags(t *testing.T) {
	solveOpt, err := toSolveOpt(docker.BuildOptions{
		ContextDir: t.TempDir(),
		Tags:       []string{"devcell/sandbox:current", "devcell/sandbox:3.1.4"},
	})
	require.NoError(t, err)

	require.Len(t, solveOpt.Exports, 1)
	assert.Equal(t, "image", solveOpt.Exports[0].Type)
	assert.Equal(t, "false", solveOpt.Exports[0].Attrs["push"])
	assert.Equal(t, "devcell/sandbox:current,devcell/sandbox:3.1.4", solveOpt.Exports[0].Attrs["name"])
}
