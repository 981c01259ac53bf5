// Package fetch downloads bottle and source archives into a
// content-addressed cache. Artifacts are stored under their SHA-256, so a
// cache hit never depends on the URL that first produced the file.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/tapline/internal/logging"
)

// ChecksumError reports an artifact whose contents do not match the
// declared digest. The bad file is already deleted when this is returned.
type ChecksumError struct {
	URL  string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: want %s, got %s", e.URL, e.Want, e.Got)
}

// Artifact is one downloadable file.
type Artifact struct {
	URL    string
	SHA256 string
}

// Fetcher downloads artifacts into cacheDir. Client may be replaced
// before first use; tests point it at a local server.
type Fetcher struct {
	Client *http.Client

	cacheDir string
	log      zerolog.Logger
}

func New(cacheDir string) *Fetcher {
	return &Fetcher{
		Client:   http.DefaultClient,
		cacheDir: cacheDir,
		log:      logging.Logger("fetch"),
	}
}

// Path returns where an artifact with the given digest lives in the
// cache, whether or not it has been fetched yet.
func (f *Fetcher) Path(sha string) string {
	return filepath.Join(f.cacheDir, sha[:2], sha)
}

// Fetch returns the cache path of the artifact, downloading it if the
// cache has no verified copy. Cached files are re-verified on every hit;
// a corrupt entry is thrown away and fetched again.
func (f *Fetcher) Fetch(ctx context.Context, art Artifact) (string, error) {
	if art.SHA256 == "" {
		return "", fmt.Errorf("fetch %s: no checksum declared", art.URL)
	}
	dest := f.Path(art.SHA256)

	if _, err := os.Stat(dest); err == nil {
		if err := verify(dest, art.SHA256); err == nil {
			f.log.Debug().Str("sha256", art.SHA256).Msg("cache hit")
			return dest, nil
		}
		f.log.Warn().Str("path", dest).Msg("corrupt cache entry, refetching")
		if err := os.Remove(dest); err != nil {
			return "", fmt.Errorf("remove corrupt cache entry: %w", err)
		}
	}

	if err := f.download(ctx, art, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (f *Fetcher) download(ctx context.Context, art Artifact, dest string) error {
	f.log.Info().Str("url", art.URL).Msg("downloading")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, art.URL, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", art.URL, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", art.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", art.URL, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", art.URL, err)
	}

	if got := hex.EncodeToString(hasher.Sum(nil)); got != art.SHA256 {
		return &ChecksumError{URL: art.URL, Want: art.SHA256, Got: got}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move into cache: %w", err)
	}
	return nil
}

// Prefetch downloads a set of artifacts concurrently, at most limit at a
// time (0 means four). The first failure cancels the rest; artifacts that
// completed stay cached.
func (f *Fetcher) Prefetch(ctx context.Context, arts []Artifact, limit int) error {
	if limit <= 0 {
		limit = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, art := range arts {
		art := art
		g.Go(func() error {
			_, err := f.Fetch(ctx, art)
			return err
		})
	}
	return g.Wait()
}

// verify hashes a file and compares it against the expected digest.
func verify(path, want string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, fh); err != nil {
		return err
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != want {
		return &ChecksumError{Want: want, Got: got}
	}
	return nil
}
