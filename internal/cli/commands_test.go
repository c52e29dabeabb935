package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assetflow/internal/output"
	"github.com/hupe1980/assetflow/internal/pipeline"
)

// ---------------------------------------------------------------------------
// main / run / start
// ---------------------------------------------------------------------------

func TestMainCommand_RunsPipelineInProjectDir(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	_, stderr, err := env.execute(context.Background(), "main")
	require.NoError(t, err)

	assert.Equal(t, []string{"include-cli", "sass", "stylelint"}, env.commands.names())
	for _, dir := range env.commands.dirs {
		assert.Equal(t, env.dir, dir)
	}

	assert.Contains(t, stderr, "the watch section is empty")
	assert.Empty(t, env.spawner.calls(), "main never spawns")
}

func TestMainCommand_FailedCommand(t *testing.T) {
	env := newTestEnv(t, "windows").withProject(t, testProjectYAML)
	env.commands.fail["sass"] = errors.New("exit status 65")

	_, stderr, err := env.execute(context.Background(), "main")
	require.Error(t, err)

	assert.Equal(t, []string{"include-cli", "sass"}, env.commands.names())
	assert.Contains(t, stderr, "'sass' failed")

	var buf bytes.Buffer
	assert.Equal(t, 1, exitCode(err, &buf))
	assert.Empty(t, buf.String(), "already reported on the console")
}

func TestMainCommand_Degraded(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, `
browserSync:
  browserSyncMod: tunnel
commands:
  include: include-cli
`)

	_, stderr, err := env.execute(context.Background(), "main")
	require.ErrorIs(t, err, pipeline.ErrDegraded)

	assert.Contains(t, stderr, "browserSyncMod only supports server, proxy, close")
	assert.Empty(t, env.commands.names())

	var buf bytes.Buffer
	assert.Equal(t, 2, exitCode(err, &buf))
	assert.Empty(t, buf.String())
}

func TestMainCommand_MissingProject(t *testing.T) {
	env := newTestEnv(t, "windows")

	_, stderr, err := env.execute(context.Background(), "main")
	require.ErrorIs(t, err, pipeline.ErrDegraded)

	assert.Contains(t, stderr, "project configuration not found")
	assert.Contains(t, stderr, "assetflow init")
	assert.Empty(t, env.commands.names())
}

func TestStartCommand_DegradedDoesNotSpawn(t *testing.T) {
	env := newTestEnv(t, "darwin").withProject(t, `
browserSync:
  browserSyncMod: tunnel
`)

	_, _, err := env.execute(context.Background(), "start")
	require.ErrorIs(t, err, pipeline.ErrDegraded)

	assert.Empty(t, env.spawner.calls())
	assert.Empty(t, env.watchedSets())
}

func TestStartCommand_Unsupported(t *testing.T) {
	env := newTestEnv(t, "windows").withProject(t, testProjectYAML)

	_, _, err := env.execute(context.Background(), "start")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, err.Error(), "not available")
	assert.Empty(t, env.commands.names())
}

func TestRunCommand(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	_, _, err := env.execute(context.Background(), "run", "sass", "lint")
	require.NoError(t, err)
	assert.Equal(t, []string{"sass", "stylelint"}, env.commands.names())
}

func TestRunCommand_UnknownTask(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	_, _, err := env.execute(context.Background(), "run", "sass", "deploy")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), "'deploy' is not declared")
	assert.Empty(t, env.commands.names(), "nothing runs when a name is unknown")
}

func TestRunCommand_NoArgs(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	_, _, err := env.execute(context.Background(), "run")
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// tasks
// ---------------------------------------------------------------------------

func TestTasksCommand_Text(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	stdout, _, err := env.execute(context.Background(), "tasks")
	require.NoError(t, err)

	assert.Contains(t, stdout, "assetflow tasks")
	assert.Contains(t, stdout, "project: site@1.2.0")
	assert.Contains(t, stdout, "lint styles")
	assert.Contains(t, stdout, "--debug")
	assert.Empty(t, env.commands.names(), "listing runs nothing")
}

func TestTasksCommand_MarkdownToFile(t *testing.T) {
	env := newTestEnv(t, "windows").withProject(t, testProjectYAML)
	path := filepath.Join(t.TempDir(), "TASKS.md")

	stdout, _, err := env.execute(context.Background(), "tasks", "--format", "markdown", "--title", "Site tasks", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(path) //nolint:gosec // test
	require.NoError(t, err)

	md := string(data)
	assert.Contains(t, md, "# Site tasks")
	assert.Contains(t, md, "| `main` | series |")
	assert.Contains(t, md, "| `lint` |")
	assert.NotContains(t, md, "| `start` |", "start is not declared on unsupervised platforms")
}

func TestTasksCommand_UnsupportedFormat(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	_, _, err := env.execute(context.Background(), "tasks", "--format", "asciidoc")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func TestConfigCommand_MergesUserFile(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)
	env.write(t, "assetflow.config.user.yaml", `
browserSync:
  browserSyncMod: proxy
commands:
  sass: [sass, --no-source-map, src:dist]
`)

	stdout, _, err := env.execute(context.Background(), "config")
	require.NoError(t, err)

	assert.Contains(t, stdout, "# Resolved from ")
	assert.Contains(t, stdout, "assetflow.config.user.yaml")
	assert.Contains(t, stdout, "browserSyncMod: proxy")
	assert.Contains(t, stdout, "include: include-cli src dist", "untouched defaults are kept")
	assert.Contains(t, stdout, "- --no-source-map")
}

func TestConfigCommand_JSON(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	stdout, _, err := env.execute(context.Background(), "config", "--json")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))

	bs, ok := doc["browserSync"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "close", bs["browserSyncMod"])
	assert.Contains(t, doc, "customTasks")
}

func TestConfigCommand_WarnsAboutFatalProblems(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, `
browserSync:
  browserSyncMod: tunnel
`)

	stdout, stderr, err := env.execute(context.Background(), "config")
	require.NoError(t, err)

	assert.Contains(t, stdout, "browserSyncMod: tunnel")
	assert.Contains(t, stderr, "browserSyncMod only supports")
}

func TestConfigCommand_MissingProject(t *testing.T) {
	env := newTestEnv(t, "linux")

	_, _, err := env.execute(context.Background(), "config")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func TestInitCommand_CreatesLoadableProject(t *testing.T) {
	env := newTestEnv(t, "linux")

	stdout, _, err := env.execute(context.Background(), "init", "--mode", "proxy", "--user")
	require.NoError(t, err)

	assert.Contains(t, stdout, "assetflow.config.yaml")
	assert.Contains(t, stdout, "assetflow.config.user.yaml")

	stdout, _, err = env.execute(context.Background(), "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "browserSyncMod: proxy")
}

func TestInitCommand_KeepsExistingFile(t *testing.T) {
	env := newTestEnv(t, "linux").withProject(t, testProjectYAML)

	_, _, err := env.execute(context.Background(), "init")
	require.Error(t, err)
	require.ErrorIs(t, err, output.ErrExists)
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(filepath.Join(env.dir, "assetflow.config.yaml")) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, testProjectYAML, string(data))

	_, _, err = env.execute(context.Background(), "init", "--force", "--mode", "server")
	require.NoError(t, err)

	data, err = os.ReadFile(filepath.Join(env.dir, "assetflow.config.yaml")) //nolint:gosec // test
	require.NoError(t, err)
	assert.Contains(t, string(data), "browserSyncMod: server")
}

func TestInitCommand_InvalidMode(t *testing.T) {
	env := newTestEnv(t, "linux")

	_, _, err := env.execute(context.Background(), "init", "--mode", "tunnel")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)

	_, statErr := os.Stat(filepath.Join(env.dir, "assetflow.config.yaml"))
	assert.True(t, os.IsNotExist(statErr))
}

// ---------------------------------------------------------------------------
// completion
// ---------------------------------------------------------------------------

func TestRunCommand_CompletesTaskNames(t *testing.T) {
	env := newTestEnv(t, "windows").withProject(t, testProjectYAML)

	cmd := NewRootCommand(WithDeps(env.deps))
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"__complete", "run", "--project-dir", env.dir, ""})
	require.NoError(t, cmd.Execute())

	stdout := out.String()

	for _, name := range []string{"include", "sass", "watch", "lint", "main", "default"} {
		assert.Contains(t, stdout, name)
	}

	assert.NotContains(t, stdout, "start")
}
