package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "knowledge_base"))
	require.NoError(t, err)
	return store
}

func TestLocalStore_SaveNextVersion_Monotonic(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)
	id := domain.Identity{Organization: "Acme", Process: "Billing"}

	first, err := store.SaveNextVersion(ctx, id, "first", 0)
	require.NoError(t, err)
	second, err := store.SaveNextVersion(ctx, id, "second", 12.5)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(store.BaseDir(), "Acme", "Acme_Billing_v1.md"), first)
	assert.Equal(t, filepath.Join(store.BaseDir(), "Acme", "Acme_Billing_v2.md"), second)

	latest, found, err := store.LoadLatest(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", latest)
}

func TestLocalStore_LoadLatest_Absent(t *testing.T) {
	store := newLocalStore(t)

	_, found, err := store.LoadLatest(context.Background(), domain.Identity{Organization: "Nobody", Process: "Nothing"})

	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocalStore_PrefixDoesNotLeakAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.SaveNextVersion(ctx, domain.Identity{Organization: "Acme", Process: "Billing_Extra"}, "x", 0)
		require.NoError(t, err)
	}

	path, err := store.SaveNextVersion(ctx, domain.Identity{Organization: "Acme", Process: "Billing"}, "y", 0)

	require.NoError(t, err)
	assert.True(t, filepath.Base(path) == "Acme_Billing_v1.md", path)
}

func TestLocalStore_VersionCollisionDetected(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)
	id := domain.Identity{Organization: "Acme", Process: "Billing"}

	_, err := store.SaveNextVersion(ctx, id, "v1", 0)
	require.NoError(t, err)

	// the scan skips directories, so this one occupies the next slot unseen
	require.NoError(t, os.Mkdir(filepath.Join(store.BaseDir(), "Acme", "Acme_Billing_v2.md"), 0o755))

	_, err = store.SaveNextVersion(ctx, id, "v2", 0)

	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestLocalStore_ConcurrentSavesGetDistinctVersions(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)
	id := domain.Identity{Organization: "Acme", Process: "Billing"}

	const writers = 8
	paths := make([]string, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = store.SaveNextVersion(ctx, id, "x", 0)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range paths {
		require.NoError(t, errs[i])
		assert.False(t, seen[paths[i]], "duplicate %s", paths[i])
		seen[paths[i]] = true
	}
	assert.Len(t, seen, writers)
}

func TestLocalStore_ListAll(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	_, err := store.SaveNextVersion(ctx, domain.Identity{Organization: "Acme", Process: "Billing"}, "a", 3.5)
	require.NoError(t, err)
	_, err = store.SaveNextVersion(ctx, domain.Identity{Organization: "Globex", Process: "Hiring"}, "b", 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), "Acme", "notes.md"), []byte("x"), 0o644))

	docs, err := store.ListAll(ctx)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	byOrg := map[string]domain.DocumentInfo{}
	for _, d := range docs {
		byOrg[d.Organization] = d
	}
	assert.Equal(t, "Billing", byOrg["Acme"].ProcessName)
	assert.Equal(t, 1, byOrg["Acme"].Version)
	assert.Equal(t, 3.5, byOrg["Acme"].ProcessingSeconds)
	assert.Equal(t, "Hiring", byOrg["Globex"].ProcessName)
	assert.Equal(t, 0.0, byOrg["Globex"].ProcessingSeconds)
	assert.False(t, docs[0].CreatedAt.Before(docs[1].CreatedAt))
}

func TestLocalStore_Read(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	path, err := store.SaveNextVersion(ctx, domain.Identity{Organization: "Acme", Process: "Billing"}, "body", 7)
	require.NoError(t, err)

	content, found, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "<!-- metadata:processing_time=7 -->\nbody", content)

	content, found, err = store.Read(ctx, "Acme/Acme_Billing_v1.md")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, content, "body")

	_, found, err = store.Read(ctx, "Acme/Acme_Billing_v9.md")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocalStore_Read_RejectsTraversal(t *testing.T) {
	store := newLocalStore(t)

	for _, locator := range []string{"../secret.md", "/etc/passwd", "Acme/../../x.md", "Acme/.Acme_Billing_vlock"} {
		_, _, err := store.Read(context.Background(), locator)
		assert.ErrorIs(t, err, domain.ErrInvalidDocumentPath, locator)
	}
}

func TestLocalStore_ListKnownIdentifiers(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	for _, id := range []domain.Identity{
		{Organization: "Acme", Process: "Billing"},
		{Organization: "Acme", Process: "Billing"},
		{Organization: "Acme", Process: "Hiring"},
		{Organization: "Globex", Process: "Audit"},
	} {
		_, err := store.SaveNextVersion(ctx, id, "x", 0)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), "Acme", "Other_Thing_v1.md"), []byte("x"), 0o644))

	ids, err := store.ListKnownIdentifiers(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"Acme/Billing", "Acme/Hiring", "Globex/Audit"}, ids)
}

func TestLocalStore_RejectsEmptyIdentity(t *testing.T) {
	store := newLocalStore(t)

	_, err := store.SaveNextVersion(context.Background(), domain.Identity{Organization: "!!!", Process: "x"}, "x", 0)

	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}
