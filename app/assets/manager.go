package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// ObjectStore is the slice of the asset store the manager needs. *Store
// satisfies it; tests substitute an in-memory fake.
type ObjectStore interface {
	Bucket() string
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, key string, body io.Reader) error
	Tag(ctx context.Context, key string, spec TagSpec) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Manager combines the durable object store with a per-community local cache
// directory. Publication reads the local file; Ensure pulls it back from the
// store when a previous run captured it.
type Manager struct {
	store      ObjectStore
	cacheDir   string
	httpClient *http.Client
	userAgent  string
}

func NewManager(store ObjectStore, cacheDir string, httpClient *http.Client, userAgent string) *Manager {
	return &Manager{
		store:      store,
		cacheDir:   cacheDir,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Key returns the object key for a community's content id.
func Key(community, id string) string {
	return community + "/" + id
}

func (m *Manager) Bucket() string {
	return m.store.Bucket()
}

func (m *Manager) LocalPath(community, id string) string {
	return filepath.Join(m.cacheDir, community, "images", id)
}

// Available reports whether the asset can be confirmed present, locally or
// in the asset store.
func (m *Manager) Available(ctx context.Context, community, id string) (bool, error) {
	if _, err := os.Stat(m.LocalPath(community, id)); err == nil {
		return true, nil
	}

	return m.store.Exists(ctx, Key(community, id))
}

// Ensure returns a local path for the asset, downloading it from the store
// when it is not cached. The path is only valid until the next ClearLocal.
func (m *Manager) Ensure(ctx context.Context, community, id string) (string, error) {
	path := m.LocalPath(community, id)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	body, err := m.store.Download(ctx, Key(community, id))
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := writeFile(path, body); err != nil {
		return "", err
	}

	slog.Debug("Asset restored from store", "community", community, "id", id)
	return path, nil
}

// Capture downloads the source asset into the local cache and uploads it to
// the store with its provenance tags.
func (m *Manager) Capture(ctx context.Context, community, id, locator, source string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", locator, nil)
	if err != nil {
		return fmt.Errorf("failed to create asset request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch asset %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asset fetch returned HTTP %d for %s", resp.StatusCode, locator)
	}

	path := m.LocalPath(community, id)
	if err := writeFile(path, resp.Body); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen cached asset: %w", err)
	}
	defer f.Close()

	key := Key(community, id)
	if err := m.store.Upload(ctx, key, f); err != nil {
		return err
	}

	if err := m.store.Tag(ctx, key, TagSpec{Locator: locator, Source: source, ID: id}); err != nil {
		return err
	}

	return nil
}

// ClearLocal wipes the community's local cache directory at the start of a
// run; anything still needed comes back from the store via Ensure.
func (m *Manager) ClearLocal(community string) error {
	dir := filepath.Join(m.cacheDir, community, "images")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read asset cache directory: %w", err)
	}

	for _, entry := range entries {
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove cached asset: %w", err)
		}
	}

	return nil
}

func writeFile(path string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create asset cache directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create asset file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write asset file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close asset file: %w", err)
	}

	return nil
}
