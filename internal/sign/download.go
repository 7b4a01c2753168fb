package sign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"amo-signer/internal/client"
	"amo-signer/internal/fileutil"
	"amo-signer/internal/logging"
	"amo-signer/internal/models"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// ErrNoSignedFiles is returned when a completed signing job lists no signed files
var ErrNoSignedFiles = errors.New("no signed files were found")

// URLBasename returns the last path segment of rawURL, ignoring query and fragment
func URLBasename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// DownloadSignedFiles fetches every signed entry of files concurrently into the
// download directory. Unsigned entries are skipped. The first failure cancels
// the remaining downloads and is returned.
func (s *Signer) DownloadSignedFiles(ctx context.Context, files []models.SignedFile) (*models.SignResult, error) {
	var signed []models.SignedFile
	for _, f := range files {
		if !f.Signed {
			logging.Warnf(ctx, "Skipping unsigned file %s", f.DownloadURL)
			continue
		}
		signed = append(signed, f)
	}
	if len(signed) == 0 {
		return nil, ErrNoSignedFiles
	}

	dir := s.downloadDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve download directory: %w", err)
		}
		dir = wd
	}

	targets, err := downloadTargets(dir, signed)
	if err != nil {
		return nil, err
	}

	logging.Noticef(ctx, "Downloading %d signed file(s) to %s", len(signed), dir)

	downloaded := make([]models.DownloadedFile, len(signed))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range signed {
		g.Go(func() error {
			df, err := s.downloadFile(gctx, targets[i], f.DownloadURL)
			if err != nil {
				return err
			}
			downloaded[i] = df
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.SignResult{Success: true, Files: downloaded}
	for _, df := range downloaded {
		logging.Noticef(ctx, "Downloaded %s (%d bytes, %s)", df.Path, df.Size, df.Digest)
		result.DownloadedFiles = append(result.DownloadedFiles, df.Path)
	}
	return result, nil
}

// downloadTargets maps each signed file to its local path. Two files that
// would land on the same path are rejected before anything is fetched.
func downloadTargets(dir string, files []models.SignedFile) ([]string, error) {
	targets := make([]string, len(files))
	seen := make(map[string]string, len(files))
	for i, f := range files {
		name := URLBasename(f.DownloadURL)
		if name == "" {
			return nil, fmt.Errorf("cannot derive a file name from %q", f.DownloadURL)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("signed files %s and %s would both be saved as %s", prev, f.DownloadURL, name)
		}
		seen[name] = f.DownloadURL
		targets[i] = filepath.Join(dir, name)
	}
	return targets, nil
}

func (s *Signer) downloadFile(ctx context.Context, target, fileURL string) (models.DownloadedFile, error) {
	logging.Debugf(ctx, "Fetching %s", fileURL)
	resp, err := s.api.Stream(ctx, http.MethodGet, client.Request{URL: fileURL})
	if err != nil {
		return models.DownloadedFile{}, fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	out, err := fileutil.CreateFile(s.fs, target)
	if err != nil {
		return models.DownloadedFile{}, fmt.Errorf("failed to create %s: %w", target, err)
	}

	digester := digest.Canonical.Digester()
	size, err := io.Copy(io.MultiWriter(out, digester.Hash()), resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(target)
		return models.DownloadedFile{}, fmt.Errorf("failed to download %s: %w", fileURL, err)
	}

	return models.DownloadedFile{
		Path:   target,
		URL:    fileURL,
		Digest: digester.Digest().String(),
		Size:   size,
	}, nil
}
