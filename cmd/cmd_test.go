package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tessera")
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting.txt"),
		[]byte("Hello {{ name }}, welcome to {{ plan }}."), 0644))

	chdir(t, t.TempDir())

	out, err := executeCommand(t, "render", "greeting.txt",
		"--templates", dir,
		"--var", "name=Ada",
		"--var", "plan=pro")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, welcome to pro.", out)
}

func TestRenderCommandMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte("<html></html>"), 0644))

	chdir(t, t.TempDir())

	_, err := executeCommand(t, "render", "nope.html", "--templates", dir)
	assert.Error(t, err)
}

func TestRenderCommandRejectsMalformedVar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte("<html></html>"), 0644))

	chdir(t, t.TempDir())

	_, err := executeCommand(t, "render", "index.html",
		"--templates", dir,
		"--var", "broken")
	assert.ErrorContains(t, err, "expected key=value")
}

func TestInitCommandScaffoldsProject(t *testing.T) {
	root := t.TempDir()

	out, err := executeCommand(t, "init", root)
	require.NoError(t, err)
	assert.Contains(t, out, "create .tessera.yml")
	assert.Contains(t, out, "create templates/index.html")

	assert.FileExists(t, filepath.Join(root, ".tessera.yml"))
	assert.FileExists(t, filepath.Join(root, "templates", "layout.html"))
	assert.FileExists(t, filepath.Join(root, "templates", "index.html"))
	assert.FileExists(t, filepath.Join(root, "public", "style.css"))

	cfgBytes, err := os.ReadFile(filepath.Join(root, ".tessera.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfgBytes), "environment: development")
}

func TestInitCommandSkipsExistingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".tessera.yml"),
		[]byte("app:\n  name: keepme\n"), 0644))

	out, err := executeCommand(t, "init", root)
	require.NoError(t, err)
	assert.Contains(t, out, "skip .tessera.yml")

	cfgBytes, err := os.ReadFile(filepath.Join(root, ".tessera.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfgBytes), "keepme")
}

func TestInitCommandProjectName(t *testing.T) {
	root := t.TempDir()

	_, err := executeCommand(t, "init", root, "--name", "demo-site")
	require.NoError(t, err)

	cfgBytes, err := os.ReadFile(filepath.Join(root, ".tessera.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfgBytes), "name: demo-site")
}
