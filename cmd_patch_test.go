package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "patchbay.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0o644))

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLIRunSaveInspectTick(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "ramp.xml")

	out, err := execute(t, "run", "examples/ramp.patch", "-o", saved)
	require.NoError(t, err)
	assert.Contains(t, out, "pulse")
	assert.Contains(t, out, "0.output -> 1.trigger")
	assert.Contains(t, out, "saved "+saved)

	out, err = execute(t, "inspect", saved)
	require.NoError(t, err)
	assert.Contains(t, out, "show-number")
	assert.NotContains(t, out, "skipped")

	out, err = execute(t, "tick", saved, "-n", "5", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "value")
	assert.Contains(t, out, "patchbay_payloads_total")
}

func TestCLIConvert(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "ramp.xml")
	packed := filepath.Join(dir, "ramp.xml.sz")

	_, err := execute(t, "run", "examples/ramp.patch", "-o", plain)
	require.NoError(t, err)

	out, err := execute(t, "convert", plain, packed)
	require.NoError(t, err)
	assert.Contains(t, out, "8 nodes, 8 edges, 0 skipped")

	raw, err := os.ReadFile(packed)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\xff\x06\x00\x00sNaPpY")))
}

func TestCLIErrors(t *testing.T) {
	script := filepath.Join(t.TempDir(), "bad.patch")
	require.NoError(t, os.WriteFile(script, []byte(`(node "teapot")`), 0o644))

	_, err := execute(t, "run", script)
	assert.ErrorContains(t, err, "1 error(s)")

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)

	_, err = execute(t, "tick", "x.xml", "-n", "-1")
	assert.ErrorContains(t, err, "negative")

	_, err = execute(t, "convert", "only-one")
	assert.Error(t, err)
}

func TestIsPatchChange(t *testing.T) {
	abs, err := filepath.Abs("patch.xml")
	require.NoError(t, err)

	assert.True(t, isPatchChange(fsnotify.Event{Name: "patch.xml", Op: fsnotify.Create}, abs))
	assert.True(t, isPatchChange(fsnotify.Event{Name: abs, Op: fsnotify.Write}, abs))
	assert.False(t, isPatchChange(fsnotify.Event{Name: ".patch.xml.123.tmp", Op: fsnotify.Create}, abs))
	assert.False(t, isPatchChange(fsnotify.Event{Name: abs, Op: fsnotify.Chmod}, abs))
}
