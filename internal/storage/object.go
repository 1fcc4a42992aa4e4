package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/procminer/internal/domain"
)

const markdownContentType = "text/markdown; charset=utf-8"

// ErrObjectExists is returned by PutIfAbsent when the key is already taken
var ErrObjectExists = errors.New("object already exists")

// ObjectInfo describes one stored object
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// ObjectAPI is the bucket surface shared by the S3 and MinIO clients
type ObjectAPI interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	PutIfAbsent(ctx context.Context, key string, body []byte, contentType string) error
}

// ObjectStore keeps versions as objects keyed by the shared layout. Write
// failures other than a version collision are logged and reported through
// DegradedLocator so the request still completes.
type ObjectStore struct {
	api     ObjectAPI
	backend string
}

// NewObjectStore wraps an ObjectAPI; backend names it in logs
func NewObjectStore(backend string, api ObjectAPI) *ObjectStore {
	return &ObjectStore{api: api, backend: backend}
}

func (s *ObjectStore) SaveNextVersion(ctx context.Context, id domain.Identity, text string, processingSeconds float64) (string, error) {
	id = id.Sanitized()
	if id.Organization == "" || id.Process == "" {
		return "", domain.ErrMissingRequiredField.Wrap(errors.New("identity is empty after sanitizing"))
	}

	names, err := s.namesUnder(ctx, id.Organization)
	if err != nil {
		log.Printf("%s store: list failed for %s: %v", s.backend, id, err)
		return DegradedLocator, nil
	}

	key := Key(id, maxVersion(names, versionPrefix(id))+1)
	if err := s.api.PutIfAbsent(ctx, key, encode(text, processingSeconds), markdownContentType); err != nil {
		if errors.Is(err, ErrObjectExists) {
			return "", domain.ErrVersionConflict.Wrap(fmt.Errorf("%s", key))
		}
		log.Printf("%s store: save failed for %s: %v", s.backend, key, err)
		return DegradedLocator, nil
	}

	return key, nil
}

// ListAll reports ProcessingSeconds as 0; reading every object is too costly
func (s *ObjectStore) ListAll(ctx context.Context) ([]domain.DocumentInfo, error) {
	objects, err := s.api.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	docs := []domain.DocumentInfo{}
	for _, obj := range objects {
		org, name, ok := splitKey(obj.Key)
		if !ok {
			continue
		}
		doc, ok := describe(obj.Key, org, name)
		if !ok {
			continue
		}
		doc.CreatedAt = obj.LastModified
		docs = append(docs, doc)
	}

	sortNewestFirst(docs)
	return docs, nil
}

func (s *ObjectStore) Read(ctx context.Context, locator string) (string, bool, error) {
	key := strings.TrimSpace(locator)
	if _, _, ok := splitKey(key); !ok || !strings.HasSuffix(key, docExt) {
		return "", false, domain.ErrInvalidDocumentPath
	}

	data, found, err := s.api.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !found {
		return "", false, nil
	}
	return string(data), true, nil
}

func (s *ObjectStore) LoadLatest(ctx context.Context, id domain.Identity) (string, bool, error) {
	id = id.Sanitized()
	names, err := s.namesUnder(ctx, id.Organization)
	if err != nil {
		return "", false, err
	}

	latest := maxVersion(names, versionPrefix(id))
	if latest == 0 {
		return "", false, nil
	}

	data, found, err := s.api.Get(ctx, id.Organization+"/"+versionPrefix(id)+strconv.Itoa(latest)+docExt)
	if err != nil || !found {
		return "", false, err
	}
	return StripMetadata(string(data)), true, nil
}

func (s *ObjectStore) ListKnownIdentifiers(ctx context.Context) ([]string, error) {
	objects, err := s.api.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	var ids []string
	for _, obj := range objects {
		org, name, ok := splitKey(obj.Key)
		if !ok {
			continue
		}
		if id, ok := identifier(org, name); ok {
			ids = append(ids, id)
		}
	}

	ids = dedupe(ids)
	sort.Strings(ids)
	return ids, nil
}

func (s *ObjectStore) namesUnder(ctx context.Context, org string) ([]string, error) {
	objects, err := s.api.List(ctx, org+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", org, err)
	}
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		if o, name, ok := splitKey(obj.Key); ok && o == org {
			names = append(names, name)
		}
	}
	return names, nil
}

// splitKey accepts exactly "{org}/{file}" with no traversal segments
func splitKey(key string) (string, string, bool) {
	org, name, ok := strings.Cut(key, "/")
	if !ok || org == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	if org == "." || org == ".." || name == "." || name == ".." || path.Clean(key) != key {
		return "", "", false
	}
	return org, name, true
}
