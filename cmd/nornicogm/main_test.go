package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func localEnv(t *testing.T) {
	t.Helper()
	t.Setenv("NORNICOGM_EXECUTOR", "local")
	t.Setenv("NORNICOGM_IN_MEMORY", "true")
	t.Setenv("NORNICOGM_LOG_LEVEL", "error")
	t.Setenv("NORNICOGM_LOG_FILE", "")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "nornicogm v"+version+" ("+commit+")\n", out)
}

func TestInitWritesStarterFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	out, err := run(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+filepath.Join(dir, "batch.yaml"))

	out, err = run(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped "+filepath.Join(dir, "nornicogm.yaml"))

	data, err := os.ReadFile(filepath.Join(dir, "nornicogm.yaml"))
	require.NoError(t, err)
	assert.Equal(t, starterConfig, string(data))
}

func TestCompilePrintsScriptAndParams(t *testing.T) {
	localEnv(t)
	dir := t.TempDir()
	_, err := run(t, "init", dir)
	require.NoError(t, err)

	out, err := run(t, "compile", "-f", filepath.Join(dir, "batch.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "ogm_var_1 = g.addV(person_1_label)")
	assert.Contains(t, out, "ogm_var_3 = ogm_var_1.addEdge(")
	assert.Contains(t, out, `person_1_name`)
	assert.Contains(t, out, `"Ada Lovelace"`)

	out, err = run(t, "compile", "-f", filepath.Join(dir, "batch.yaml"), "--interpolate")
	require.NoError(t, err)
	assert.NotContains(t, out, "person_1_name")
	assert.Contains(t, out, "Ada Lovelace")
}

func TestCompileRequiresFile(t *testing.T) {
	_, err := run(t, "compile")
	assert.Error(t, err)
}

func TestApplyLocal(t *testing.T) {
	localEnv(t)
	dir := t.TempDir()
	_, err := run(t, "init", dir)
	require.NoError(t, err)

	out, err := run(t, "apply", "-f", filepath.Join(dir, "batch.yaml"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "REF"))
	assert.True(t, strings.HasPrefix(lines[1], "ada"))
	for _, line := range lines[1:] {
		assert.NotContains(t, line, "<nil>")
	}
}

func TestApplyBadger(t *testing.T) {
	localEnv(t)
	t.Setenv("NORNICOGM_IN_MEMORY", "false")
	dir := t.TempDir()
	_, err := run(t, "init", dir)
	require.NoError(t, err)

	out, err := run(t, "apply", "-f", filepath.Join(dir, "batch.yaml"), "--data-dir", filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.Contains(t, out, "charles")
	assert.NotContains(t, out, "<nil>")
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestApplyRejectsBadConfig(t *testing.T) {
	localEnv(t)
	dir := t.TempDir()
	_, err := run(t, "init", dir)
	require.NoError(t, err)

	_, err = run(t, "apply", "-f", filepath.Join(dir, "batch.yaml"), "--executor", "bolt")
	assert.ErrorContains(t, err, "invalid config")
}
