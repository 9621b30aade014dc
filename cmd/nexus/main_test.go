package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nexus/pkg/config"
	"github.com/orneryd/nexus/pkg/cypher"
	"github.com/orneryd/nexus/pkg/search"
	"github.com/orneryd/nexus/pkg/storage"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// isolate keeps stray config files and NEXUS_* variables out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("NEXUS_DATA_DIR", "")
	t.Setenv("NEXUS_IN_MEMORY", "")
	t.Setenv("NEXUS_VECTOR_METRIC", "")
	t.Chdir(dir)
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Nexus v"+version)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	backup := filepath.Join(dir, "graph.bak")

	engine, err := storage.NewBadgerEngine(src)
	require.NoError(t, err)
	exec := cypher.NewExecutor(engine, cypher.DefaultOptions())
	_, err = exec.Execute(context.Background(), "CREATE (:Person {name: 'Ada'})-[:KNOWS]->(:Person {name: 'Grace'})", nil)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	out, err := runCLI(t, "backup", "--data-dir", src, "--out", backup, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "wrote")

	out, err = runCLI(t, "restore", "--data-dir", dst, "--in", backup, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "restored 2 nodes and 1 relationships")

	restored, err := storage.NewBadgerEngine(dst)
	require.NoError(t, err)
	defer restored.Close()
	res, err := cypher.NewExecutor(restored, cypher.DefaultOptions()).
		Execute(context.Background(), "MATCH (a)-[:KNOWS]->(b) RETURN a.name, b.name", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestBackupRequiresOut(t *testing.T) {
	isolate(t)
	_, err := runCLI(t, "backup")
	assert.Error(t, err)
}

func TestLoadConfigFlagPrecedence(t *testing.T) {
	dir := isolate(t)
	t.Setenv("NEXUS_HTTP_PORT", "8000")

	cmd := newRootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--http-port", "9000", "--data-dir", dir, "--log-level", "debug", "--vector-metric", "dot"}))

	cfg, err := loadConfig(serve)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.HTTPPort, "flags win over env")
	assert.Equal(t, dir, cfg.Database.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)

	opts, err := executorOptions(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Database.StatementTimeout, opts.StatementTimeout)
	assert.Equal(t, cfg.PlanCache.MaxEntries, opts.PlanCache.MaxEntries)
	assert.Equal(t, cfg.Vector.DefaultK, opts.DefaultK)
	assert.Equal(t, search.Dot, opts.VectorMetric)
}

func TestExecutorOptionsVectorMetric(t *testing.T) {
	isolate(t)
	t.Setenv("NEXUS_VECTOR_METRIC", "euclidean")
	cfg, err := config.LoadFromFile("")
	require.NoError(t, err)

	opts, err := executorOptions(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, search.Euclidean, opts.VectorMetric)

	cfg.Vector.Metric = "manhattan"
	_, err = executorOptions(cfg, nil)
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	isolate(t)
	cmd := newRootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--log-level", "loud"}))
	_, err = loadConfig(serve)
	assert.ErrorContains(t, err, "invalid configuration")
}
