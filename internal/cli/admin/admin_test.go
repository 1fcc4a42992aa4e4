package admin

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/procminer/internal/config"
	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_DefaultsToLocal(t *testing.T) {
	cfg := &config.Config{KBDir: filepath.Join(t.TempDir(), "kb")}

	store, closeStore, err := OpenStore(context.Background(), cfg, false)
	require.NoError(t, err)
	defer closeStore()

	require.IsType(t, &storage.LocalStore{}, store)

	locator, err := store.SaveNextVersion(context.Background(), domain.Identity{Organization: "Acme", Process: "Billing"}, "steps", 0)
	require.NoError(t, err)
	assert.FileExists(t, locator)
}

func TestSweepCmd(t *testing.T) {
	uploads := t.TempDir()
	old := filepath.Join(uploads, "crashed-request")
	fresh := filepath.Join(uploads, "live-request")
	require.NoError(t, os.Mkdir(old, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	t.Setenv("PROCMINER_UPLOAD_DIR", uploads)

	cmd := SweepCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--ttl", "1h"})
	require.NoError(t, cmd.Execute())

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.Contains(t, out.String(), "removed 1 expired entries")
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := ServeCmd()

	port := cmd.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, defaultPort, port.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("no-migrate"))
}
