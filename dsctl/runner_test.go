package dsctl

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/testutil"
	"github.com/joshjon/txconn/txtest"
)

var migrations = fstest.MapFS{
	"1_create_items.up.sql":   {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
	"1_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
	"2_add_price.up.sql":      {Data: []byte("ALTER TABLE items ADD COLUMN price INTEGER NOT NULL DEFAULT 0;")},
	"2_add_price.down.sql":    {Data: []byte("ALTER TABLE items DROP COLUMN price;")},
}

func newRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := NewRunner(RunnerConfig{
		Migrations: migrations,
		Logger:     log.Nop(),
		Writer:     &out,
	})
	require.NoError(t, err)
	return r, &out
}

func schemaVersion(t *testing.T, dir, name string) string {
	t.Helper()
	r, out := newRunner(t)
	err := r.Run([]string{"dsctl", "--sqlite-dir", dir, "--sqlite-name", name, "version"})
	require.NoError(t, err)
	return out.String()
}

func TestNewRunner_RequiresMigrations(t *testing.T) {
	_, err := NewRunner(RunnerConfig{})
	require.Error(t, err)
}

func TestRunner_Migrate(t *testing.T) {
	r, _ := newRunner(t)
	dir := t.TempDir()
	name := testutil.RandName()

	err := r.Run([]string{"dsctl", "--sqlite-dir", dir, "--sqlite-name", name, "migrate"})
	require.NoError(t, err)
	assert.Equal(t, "version=2 dirty=false\n", schemaVersion(t, dir, name))
}

func TestRunner_MigrateVersion(t *testing.T) {
	r, _ := newRunner(t)
	dir := t.TempDir()
	name := testutil.RandName()

	err := r.Run([]string{"dsctl", "--sqlite-dir", dir, "--sqlite-name", name, "migrate-version", "--version", "1"})
	require.NoError(t, err)
	assert.Equal(t, "version=1 dirty=false\n", schemaVersion(t, dir, name))
}

func TestRunner_VersionBeforeMigrate(t *testing.T) {
	assert.Equal(t, "version=0 dirty=false\n", schemaVersion(t, t.TempDir(), testutil.RandName()))
}

func TestRunner_CheckFromConfigFile(t *testing.T) {
	r, out := newRunner(t)
	dir := t.TempDir()

	cfgFile := filepath.Join(dir, "datasource.yaml")
	yaml := "driver: sqlite\nsqlite_dir: " + dir + "\nsqlite_name: check\nmax_open_conns: 2\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(yaml), 0o600))

	err := r.Run([]string{"dsctl", "--config", cfgFile, "check"})
	require.NoError(t, err)
	assert.Equal(t, "ok driver=sqlite auto_commit=true read_only=false local_tx=ok\n", out.String())
}

func TestRunner_InvalidConfig(t *testing.T) {
	r, _ := newRunner(t)

	err := r.Run([]string{"dsctl", "--driver", "postgres", "check"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestCheckLocalTx_RollsBackOnFailure(t *testing.T) {
	ctx := testutil.Context(t)
	c := txtest.NewConn("a")
	want := errors.New("no such table")
	c.FailOn(conn.OpQueryRow, want)

	err := checkLocalTx(ctx, c)
	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, c.Called(conn.OpRollback))
	assert.Zero(t, c.Called(conn.OpCommit))

	autoCommit, err := c.AutoCommit(ctx)
	require.NoError(t, err)
	assert.True(t, autoCommit)
}
