package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// LocalStore keeps versions as markdown files under a base directory.
// Saves for one identity are serialized with a file lock and every version
// file is created exclusively, so a concurrent writer from another process
// surfaces as ErrVersionConflict instead of overwriting.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(baseDir string) (*LocalStore, error) {
	baseDir = filepath.Clean(baseDir)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create knowledge base dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) SaveNextVersion(ctx context.Context, id domain.Identity, text string, processingSeconds float64) (string, error) {
	id = id.Sanitized()
	if id.Organization == "" || id.Process == "" {
		return "", domain.ErrMissingRequiredField.Wrap(errors.New("identity is empty after sanitizing"))
	}

	dir := filepath.Join(s.baseDir, id.Organization)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.ErrStoreWrite.Wrap(err)
	}

	prefix := versionPrefix(id)
	lock := flock.New(filepath.Join(dir, "."+prefix+"lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return "", domain.ErrStoreWrite.Wrap(fmt.Errorf("failed to lock %s: %w", id, err))
	}
	defer func() { _ = lock.Unlock() }()

	names, err := readNames(dir)
	if err != nil {
		return "", domain.ErrStoreWrite.Wrap(err)
	}

	path := filepath.Join(dir, prefix+strconv.Itoa(maxVersion(names, prefix)+1)+docExt)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", domain.ErrVersionConflict.Wrap(fmt.Errorf("%s", path))
		}
		return "", domain.ErrStoreWrite.Wrap(err)
	}

	if _, err := f.Write(encode(text, processingSeconds)); err != nil {
		_ = f.Close()
		return "", domain.ErrStoreWrite.Wrap(err)
	}
	if err := f.Close(); err != nil {
		return "", domain.ErrStoreWrite.Wrap(err)
	}

	return path, nil
}

func (s *LocalStore) ListAll(ctx context.Context) ([]domain.DocumentInfo, error) {
	orgs, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.DocumentInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	docs := []domain.DocumentInfo{}
	for _, org := range orgs {
		if !org.IsDir() {
			continue
		}
		dir := filepath.Join(s.baseDir, org.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			path := filepath.Join(dir, f.Name())
			doc, ok := describe(path, org.Name(), f.Name())
			if !ok {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			doc.CreatedAt = info.ModTime()
			doc.ProcessingSeconds = readProcessingTime(path)
			docs = append(docs, doc)
		}
	}

	sortNewestFirst(docs)
	return docs, nil
}

// Read accepts locators with or without the base directory prefix
func (s *LocalStore) Read(ctx context.Context, locator string) (string, bool, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), true, nil
}

func (s *LocalStore) resolve(locator string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimSpace(locator)))
	rel = strings.TrimPrefix(rel, s.baseDir+string(filepath.Separator))
	if !filepath.IsLocal(rel) || filepath.Ext(rel) != docExt {
		return "", domain.ErrInvalidDocumentPath
	}
	return filepath.Join(s.baseDir, rel), nil
}

func (s *LocalStore) LoadLatest(ctx context.Context, id domain.Identity) (string, bool, error) {
	id = id.Sanitized()
	dir := filepath.Join(s.baseDir, id.Organization)

	names, err := readNames(dir)
	if err != nil {
		return "", false, err
	}

	prefix := versionPrefix(id)
	latest := maxVersion(names, prefix)
	if latest == 0 {
		return "", false, nil
	}

	data, err := os.ReadFile(filepath.Join(dir, prefix+strconv.Itoa(latest)+docExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read latest version: %w", err)
	}
	return StripMetadata(string(data)), true, nil
}

func (s *LocalStore) ListKnownIdentifiers(ctx context.Context) ([]string, error) {
	orgs, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	var ids []string
	for _, org := range orgs {
		if !org.IsDir() {
			continue
		}
		names, err := readNames(filepath.Join(s.baseDir, org.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if id, ok := identifier(org.Name(), name); ok {
				ids = append(ids, id)
			}
		}
	}

	ids = dedupe(ids)
	sort.Strings(ids)
	return ids, nil
}

// readNames lists regular file names in dir; a missing dir yields none
func readNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func readProcessingTime(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return 0
	}
	return ProcessingTime(line)
}
