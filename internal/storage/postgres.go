package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps versions in the sop_versions table. The unique
// (organization, process, version) constraint turns a racing writer into
// ErrVersionConflict.
type PostgresStore struct {
	db dbtx
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

// RunMigrations applies the embedded schema migrations
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	noChange := errors.Is(err, migrate.ErrNoChange)

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("migrations: database is up to date (no migrations applied)")
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case noChange:
		log.Printf("migrations: database is up to date (version %d)", version)
	default:
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}

func (s *PostgresStore) SaveNextVersion(ctx context.Context, id domain.Identity, text string, processingSeconds float64) (string, error) {
	id = id.Sanitized()
	if id.Organization == "" || id.Process == "" {
		return "", domain.ErrMissingRequiredField.Wrap(errors.New("identity is empty after sanitizing"))
	}

	var latest int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM sop_versions WHERE organization = $1 AND process = $2`,
		id.Organization, id.Process,
	).Scan(&latest)
	if err != nil {
		return "", domain.ErrStoreWrite.Wrap(err)
	}

	version := latest + 1
	key := Key(id, version)
	_, filename, _ := strings.Cut(key, "/")
	if processingSeconds < 0 {
		processingSeconds = 0
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO sop_versions (organization, process, version, object_key, filename, content, processing_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.Organization, id.Process, version, key, filename, text, processingSeconds,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", domain.ErrVersionConflict.Wrap(fmt.Errorf("%s", key))
		}
		return "", domain.ErrStoreWrite.Wrap(err)
	}

	return key, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]domain.DocumentInfo, error) {
	rows, err := s.db.Query(ctx,
		`SELECT object_key, organization, filename, process, version, created_at, processing_seconds
		 FROM sop_versions ORDER BY created_at DESC, object_key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []domain.DocumentInfo{}
	for rows.Next() {
		var d domain.DocumentInfo
		if err := rows.Scan(&d.ID, &d.Organization, &d.Filename, &d.ProcessName, &d.Version, &d.CreatedAt, &d.ProcessingSeconds); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Read renders the stored row the way file backends store it, marker included
func (s *PostgresStore) Read(ctx context.Context, locator string) (string, bool, error) {
	key := strings.TrimSpace(locator)
	if _, _, ok := splitKey(key); !ok {
		return "", false, domain.ErrInvalidDocumentPath
	}

	var content string
	var seconds float64
	err := s.db.QueryRow(ctx,
		`SELECT content, processing_seconds FROM sop_versions WHERE object_key = $1`,
		key,
	).Scan(&content, &seconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(encode(content, seconds)), true, nil
}

func (s *PostgresStore) LoadLatest(ctx context.Context, id domain.Identity) (string, bool, error) {
	id = id.Sanitized()

	var content string
	err := s.db.QueryRow(ctx,
		`SELECT content FROM sop_versions WHERE organization = $1 AND process = $2
		 ORDER BY version DESC LIMIT 1`,
		id.Organization, id.Process,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return content, true, nil
}

func (s *PostgresStore) ListKnownIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT organization, process FROM sop_versions ORDER BY organization, process`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var org, process string
		if err := rows.Scan(&org, &process); err != nil {
			return nil, err
		}
		ids = append(ids, org+"/"+process)
	}
	return ids, rows.Err()
}
