package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	tempFilePrefix       = "face_processing_"
	defaultRemoteTimeout = 30 * time.Second
	defaultMaxRemoteSize = 50 << 20
)

// LocalImage is an image readable from the local filesystem. Close removes
// it when it is a transient download and is a no-op otherwise.
type LocalImage struct {
	Path   string
	Remote bool
}

func (li *LocalImage) Close() error {
	if !li.Remote {
		return nil
	}
	if err := os.Remove(li.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("media.loader: failed to clean up temporary file %s: %v", li.Path, err)
		return fmt.Errorf("failed to remove temporary file %s: %w", li.Path, err)
	}
	return nil
}

// Loader resolves local paths and remote object URLs to local files.
type Loader struct {
	BaseDir string // relative local refs are resolved against it
	TempDir string // where remote downloads are written; os.TempDir() when empty
	Client  *http.Client
	// MaxBytes caps a remote download; defaultMaxRemoteSize when zero
	MaxBytes int64
}

func NewLoader(baseDir string, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Loader{
		BaseDir: baseDir,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Fetch makes ref available locally. Missing local files and failed
// downloads return ErrImageUnavailable.
func (l *Loader) Fetch(ctx context.Context, ref string) (*LocalImage, error) {
	if IsRemoteRef(ref) {
		return l.download(ctx, ref)
	}

	path := ref
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: local image %s: %v", ErrImageUnavailable, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrImageUnavailable, path)
	}
	return &LocalImage{Path: path}, nil
}

func (l *Loader) download(ctx context.Context, ref string) (*LocalImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", ErrImageUnavailable, err)
	}

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download failed: %v", ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: download returned status %d", ErrImageUnavailable, resp.StatusCode)
	}

	dir := l.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tempPath := filepath.Join(dir, tempFilePrefix+uuid.NewString()+remoteExt(ref))

	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = defaultMaxRemoteSize
	}
	n, copyErr := io.Copy(out, io.LimitReader(resp.Body, limit+1))
	closeErr := out.Close()
	if copyErr == nil && n > limit {
		os.Remove(tempPath)
		return nil, fmt.Errorf("%w: download exceeds %d bytes", ErrImageUnavailable, limit)
	}
	if copyErr != nil || closeErr != nil {
		os.Remove(tempPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return nil, fmt.Errorf("%w: failed to write download: %v", ErrImageUnavailable, copyErr)
	}

	log.Printf("media.loader: downloaded remote image to %s", tempPath)
	return &LocalImage{Path: tempPath, Remote: true}, nil
}
