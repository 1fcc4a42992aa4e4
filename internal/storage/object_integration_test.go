//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store interface {
	SaveNextVersion(ctx context.Context, id domain.Identity, text string, processingSeconds float64) (string, error)
	LoadLatest(ctx context.Context, id domain.Identity) (string, bool, error)
	ListAll(ctx context.Context) ([]domain.DocumentInfo, error)
	ListKnownIdentifiers(ctx context.Context) ([]string, error)
	Read(ctx context.Context, locator string) (string, bool, error)
}) {
	t.Helper()
	ctx := context.Background()
	id := domain.Identity{Organization: "Acme", Process: "Billing"}

	first, err := store.SaveNextVersion(ctx, id, "first", 0)
	require.NoError(t, err)
	second, err := store.SaveNextVersion(ctx, id, "second", 4.5)
	require.NoError(t, err)
	assert.Equal(t, "Acme/Acme_Billing_v1.md", first)
	assert.Equal(t, "Acme/Acme_Billing_v2.md", second)

	latest, found, err := store.LoadLatest(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", latest)

	raw, found, err := store.Read(ctx, second)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4.5, ProcessingTime(raw))

	docs, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	ids, err := store.ListKnownIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme/Billing"}, ids)
}

func TestIntegration_S3Store(t *testing.T) {
	ctx := context.Background()
	mc := testutil.NewMinIOContainer(ctx, t)
	defer mc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        mc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     mc.AccessKey,
		SecretAccessKey: mc.SecretKey,
		Bucket:          "s3-knowledge",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))

	exerciseStore(t, NewObjectStore("s3", client))

	err = client.PutIfAbsent(ctx, "Acme/Acme_Billing_v1.md", []byte("again"), markdownContentType)
	assert.ErrorIs(t, err, ErrObjectExists)
}

func TestIntegration_MinIOStore(t *testing.T) {
	ctx := context.Background()
	mc := testutil.NewMinIOContainer(ctx, t)
	defer mc.Terminate(ctx)

	client, err := NewMinIOClient(MinIOConfig{
		Endpoint:  mc.Address(),
		AccessKey: mc.AccessKey,
		SecretKey: mc.SecretKey,
		Bucket:    "minio-knowledge",
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))

	exerciseStore(t, NewObjectStore("minio", client))

	err = client.PutIfAbsent(ctx, "Acme/Acme_Billing_v1.md", []byte("again"), markdownContentType)
	assert.ErrorIs(t, err, ErrObjectExists)

	_, found, err := client.Get(ctx, "Acme/missing.md")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegration_PostgresStore(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	require.NoError(t, RunMigrations(pc.ConnectionString()))
	require.NoError(t, RunMigrations(pc.ConnectionString()))

	store := NewPostgresStore(pool)
	exerciseStore(t, store)

	_, err := pool.Exec(ctx,
		`INSERT INTO sop_versions (organization, process, version, object_key, filename, content)
		 VALUES ('Acme', 'Billing', 3, 'Acme/Acme_Billing_v3.md', 'Acme_Billing_v3.md', 'x')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO sop_versions (organization, process, version, object_key, filename, content)
		 VALUES ('Acme', 'Billing', 3, 'Acme/dup.md', 'dup.md', 'x')`)
	assert.Error(t, err)

	_, found, err := store.LoadLatest(ctx, domain.Identity{Organization: "Nobody", Process: "Nothing"})
	require.NoError(t, err)
	assert.False(t, found)
}
