package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midiseq/sequencer"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configPath = ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestProjectsCommand(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "projects")
	cfgPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("project:\n  name: demo\n  dir: "+dir+"\n"), 0644))

	out, err := execute(t, "--config", cfgPath, "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "(no projects)")

	storage := sequencer.NewStorage(sequencer.DefaultOptions())
	storage.AddTrack()
	file, err := sequencer.NewProjectStore(dir).Save("demo", storage)
	require.NoError(t, err)

	out, err = execute(t, "--config", cfgPath, "projects", "new", "my song")
	require.NoError(t, err)
	assert.Contains(t, out, "created my-song")

	out, err = execute(t, "--config", cfgPath, "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "* demo")
	assert.Contains(t, out, "  my-song")

	out, err = execute(t, "--config", cfgPath, "projects", "saves")
	require.NoError(t, err)
	assert.Contains(t, out, file)

	out, err = execute(t, "--config", cfgPath, "projects", "mv-save", "demo", file, "first take")
	require.NoError(t, err)
	labelled := strings.TrimSuffix(file, ".yaml") + "_first-take.yaml"
	assert.Contains(t, out, labelled)

	_, err = execute(t, "--config", cfgPath, "projects", "rm-save", "demo", labelled)
	require.NoError(t, err)
	out, err = execute(t, "--config", cfgPath, "projects", "saves", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "(no saves in demo)")

	_, err = execute(t, "--config", cfgPath, "projects", "mv", "my-song", "b side")
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath, "projects", "rm", "demo")
	require.NoError(t, err)

	out, err = execute(t, "--config", cfgPath, "projects")
	require.NoError(t, err)
	assert.NotContains(t, out, "demo")
	assert.Contains(t, out, "b-side")
}

func TestProjectsCommandRejectsPaths(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "projects")
	cfgPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("project:\n  dir: "+dir+"\n"), 0644))

	for _, args := range [][]string{
		{"projects", "rm", ".."},
		{"projects", "rm", "../.."},
		{"projects", "rm-save", "..", "config.yaml"},
		{"projects", "new", ".."},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := execute(t, append([]string{"--config", cfgPath}, args...)...)
			assert.ErrorIs(t, err, sequencer.ErrInvalidParameter)
		})
	}
	assert.FileExists(t, cfgPath)
}
