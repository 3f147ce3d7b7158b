package modelcache

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State tracks where a model artifact is in its download lifecycle.
type State string

const (
	StateAbsent      State = "absent"
	StateDownloading State = "downloading"
	StateReady       State = "ready"
	StateFailed      State = "failed"
)

// Record is the persisted status of one model artifact.
type Record struct {
	ModelID   string    `json:"model_id"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"download_state"`
	LocalPath string    `json:"local_path,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ErrUnknownModel is returned for model IDs absent from the registry.
var ErrUnknownModel = errors.New("unknown model")

const statusFileName = "model_status.json"

// ProgressFunc receives download progress as a fraction in [0, 1].
type ProgressFunc func(modelID string, fraction float64)

// Cache owns the on-disk model artifacts and their status file. All
// methods are safe for concurrent use; concurrent downloads of the same
// model ID collapse into a single fetch.
type Cache struct {
	dir    string
	client *http.Client

	mu       sync.Mutex
	records  map[string]*Record
	progress ProgressFunc

	group singleflight.Group
}

// New opens a model cache rooted at dir, creating it if needed. Records
// left in the downloading state by a crash are demoted to absent so the
// next request retries the whole artifact.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}

	c := &Cache{
		dir:     dir,
		client:  &http.Client{},
		records: make(map[string]*Record),
	}

	if err := c.loadStatus(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// SetProgress installs a download progress callback.
func (c *Cache) SetProgress(fn ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = fn
}

// ModelInfo returns a read-only snapshot of the current cache state.
func (c *Cache) ModelInfo() map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Record, len(c.records))
	for id, rec := range c.records {
		out[id] = *rec
	}
	return out
}

// Path returns the local artifact path for a model ID and whether the
// artifact is ready for use.
func (c *Cache) Path(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok || rec.State != StateReady {
		return "", false
	}
	return rec.LocalPath, true
}

// EnsureReady makes sure the identified model is downloaded, fetching it
// if needed. Already-ready models return immediately without network
// access. Concurrent calls for the same ID share one download.
func (c *Cache) EnsureReady(ctx context.Context, id string) error {
	spec, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return c.EnsureSpec(ctx, spec)
}

// EnsureSpec is EnsureReady for an explicit spec, letting callers supply
// artifacts outside the built-in registry.
func (c *Cache) EnsureSpec(ctx context.Context, spec Spec) error {
	if c.isReady(spec) {
		return nil
	}

	_, err, _ := c.group.Do(spec.ID, func() (any, error) {
		// A racing caller may have completed the fetch while this one
		// waited on the singleflight lock.
		if c.isReady(spec) {
			return nil, nil
		}
		return nil, c.download(ctx, spec)
	})
	return err
}

// DownloadTranslationModel ensures the translation artifact for a language
// pair is ready. It reports success rather than raising for the expected
// failure modes: unsupported pairs and fetch errors return false.
func (c *Cache) DownloadTranslationModel(ctx context.Context, source, target string) bool {
	spec, ok := Lookup("opus-mt-" + source + "-" + target)
	if !ok {
		slog.Error("no translation model for pair", "source", source, "target", target)
		return false
	}

	if err := c.EnsureSpec(ctx, spec); err != nil {
		slog.Error("download translation model", "model", spec.ID, "error", err)
		return false
	}
	return true
}

// ClearCache deletes all cached artifacts and resets the status file.
// The caller must guarantee no session holds handles into the cache.
func (c *Cache) ClearCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read models dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}

	c.records = make(map[string]*Record)
	return c.saveStatusLocked()
}

// isReady reports whether the artifact is marked ready and still on disk.
func (c *Cache) isReady(spec Spec) bool {
	c.mu.Lock()
	rec, ok := c.records[spec.ID]
	c.mu.Unlock()

	if !ok || rec.State != StateReady {
		return false
	}
	if _, err := os.Stat(rec.LocalPath); err != nil {
		return false
	}
	return true
}

// download fetches one artifact: absent → downloading → ready|failed,
// persisting the status file on every transition. The fetch goes to a
// temporary file first so a crash never leaves a half-written artifact
// at the final path.
func (c *Cache) download(ctx context.Context, spec Spec) error {
	dest := filepath.Join(c.dir, spec.Filename)
	c.setState(spec, StateDownloading, "", 0)

	slog.Info("downloading model", "model", spec.ID, "url", spec.URL)

	size, err := c.fetch(ctx, spec, dest)
	if err != nil {
		c.setState(spec, StateFailed, "", 0)
		return fmt.Errorf("download %s: %w", spec.ID, err)
	}

	c.setState(spec, StateReady, dest, size)
	slog.Info("model ready", "model", spec.ID, "path", dest, "bytes", size)
	return nil
}

func (c *Cache) fetch(ctx context.Context, spec Spec, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("http status: %s", resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = spec.SizeBytes
	}

	tmpPath := dest + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return 0, werr
			}
			downloaded += int64(n)
			c.reportProgress(spec.ID, downloaded, total)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, rerr
		}
	}

	if err := f.Close(); err != nil {
		return 0, err
	}

	if spec.IsArchive {
		if err := unzip(tmpPath, dest); err != nil {
			return 0, fmt.Errorf("unpack archive: %w", err)
		}
		os.Remove(tmpPath)
		return downloaded, nil
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, err
	}
	return downloaded, nil
}

func (c *Cache) reportProgress(id string, downloaded, total int64) {
	c.mu.Lock()
	fn := c.progress
	c.mu.Unlock()

	if fn == nil || total <= 0 {
		return
	}
	fraction := float64(downloaded) / float64(total)
	if fraction > 1 {
		fraction = 1
	}
	fn(id, fraction)
}

// setState records a lifecycle transition and persists the status file.
func (c *Cache) setState(spec Spec, state State, localPath string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[spec.ID]
	if !ok {
		rec = &Record{ModelID: spec.ID, Kind: spec.Kind}
		c.records[spec.ID] = rec
	}
	rec.State = state
	rec.LocalPath = localPath
	rec.SizeBytes = size
	rec.UpdatedAt = time.Now()

	if err := c.saveStatusLocked(); err != nil {
		slog.Error("persist model status", "model", spec.ID, "error", err)
	}
}

func (c *Cache) statusPath() string {
	return filepath.Join(c.dir, statusFileName)
}

func (c *Cache) loadStatus() error {
	data, err := os.ReadFile(c.statusPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read status file: %w", err)
	}

	var records map[string]*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("unmarshal status file: %w", err)
	}

	for id, rec := range records {
		// A crash mid-download leaves the record in downloading; treat
		// it as absent so the whole artifact is retried.
		if rec.State == StateDownloading {
			rec.State = StateAbsent
			rec.LocalPath = ""
		}
		c.records[id] = rec
	}
	return nil
}

// saveStatusLocked rewrites the status file atomically. Callers hold c.mu.
func (c *Cache) saveStatusLocked() error {
	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmpPath := c.statusPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmpPath, c.statusPath()); err != nil {
		return fmt.Errorf("rename status: %w", err)
	}
	return nil
}

func unzip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)
		if !filepath.IsLocal(f.Name) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}

		out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			out.Close()
			return err
		}

		_, err = io.Copy(out, rc)
		out.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
