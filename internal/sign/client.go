package sign

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"amo-signer/internal/client"
	"amo-signer/internal/fileutil"
	"amo-signer/internal/logging"
	"amo-signer/internal/models"

	"github.com/spf13/afero"
)

const (
	// DefaultStatusCheckInterval spaces consecutive status GETs
	DefaultStatusCheckInterval = 1 * time.Second
	// DefaultStatusCheckTimeout bounds the whole poll
	DefaultStatusCheckTimeout = 5 * time.Minute
)

// ErrVersionExists is returned by Submit when the server already has this version (HTTP 409)
var ErrVersionExists = errors.New("version already exists")

// API is the subset of the request executor the signer needs. *client.Client satisfies it.
type API interface {
	Get(ctx context.Context, req client.Request, opts ...client.RequestOption) (*client.Response, error)
	Put(ctx context.Context, req client.Request, opts ...client.RequestOption) (*client.Response, error)
	Stream(ctx context.Context, method string, req client.Request) (*http.Response, error)
}

// Signer drives one package through upload, status polling and download
type Signer struct {
	api                 API
	fs                  afero.Fs
	timers              Timers
	progress            Progress
	statusCheckInterval time.Duration
	statusCheckTimeout  time.Duration
	downloadDir         string
}

// Option configures a Signer
type Option func(*Signer)

// WithFs sets the file system packages are read from and signed files written to
func WithFs(fs afero.Fs) Option {
	return func(s *Signer) { s.fs = fs }
}

// WithTimers replaces the timer service used by the poller
func WithTimers(t Timers) Option {
	return func(s *Signer) { s.timers = t }
}

// WithProgress sets the indicator animated while polling
func WithProgress(p Progress) Option {
	return func(s *Signer) { s.progress = p }
}

// WithStatusCheckInterval sets the spacing between status GETs. Zero disables spacing.
func WithStatusCheckInterval(d time.Duration) Option {
	return func(s *Signer) { s.statusCheckInterval = d }
}

// WithStatusCheckTimeout bounds the poll. Zero fails on the first check.
func WithStatusCheckTimeout(d time.Duration) Option {
	return func(s *Signer) { s.statusCheckTimeout = d }
}

// WithDownloadDir sets where signed files are written (default: working directory)
func WithDownloadDir(dir string) Option {
	return func(s *Signer) { s.downloadDir = dir }
}

// NewSigner creates a signer on top of api
func NewSigner(api API, opts ...Option) *Signer {
	s := &Signer{
		api:                 api,
		fs:                  afero.NewOsFs(),
		timers:              RealTimers{},
		progress:            noProgress{},
		statusCheckInterval: DefaultStatusCheckInterval,
		statusCheckTimeout:  DefaultStatusCheckTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign uploads the package, waits for the signing job and downloads the signed files.
// A version the server already has yields Success=false without polling.
func (s *Signer) Sign(ctx context.Context, req models.SignRequest) (*models.SignResult, error) {
	defer logging.Group(ctx, fmt.Sprintf("Signing %s version %s", req.GUID, req.Version))()

	if err := req.Validate(); err != nil {
		return nil, &client.ValidationError{Err: fmt.Errorf("invalid sign request: %w", err)}
	}

	statusURL, err := s.Submit(ctx, req)
	if errors.Is(err, ErrVersionExists) {
		logging.Warnf(ctx, "Version %s of %s already exists; nothing to sign", req.Version, req.GUID)
		return &models.SignResult{Success: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return s.WaitForSignedAddon(ctx, statusURL)
}

// Submit uploads the package with PUT /addons/{guid}/versions/{version}/ and
// returns the status-check URL from the response. HTTP 409 returns ErrVersionExists.
func (s *Signer) Submit(ctx context.Context, req models.SignRequest) (string, error) {
	logging.Debugf(ctx, "Package path: %s", req.XPIPath)
	if err := fileutil.ValidateUpload(s.fs, req.XPIPath); err != nil {
		return "", &client.ValidationError{Err: err}
	}

	file, err := s.fs.Open(req.XPIPath)
	if err != nil {
		return "", fmt.Errorf("failed to open package: %w", err)
	}
	// the multipart goroutine owns file from here on
	body, contentType := client.MultipartFile("upload", filepath.Base(req.XPIPath), file)
	defer body.Close()

	target := req.VersionPath()
	logging.Debugf(ctx, "Uploading package to %s", target)
	startTime := time.Now()
	resp, err := s.api.Put(ctx, client.Request{
		URL:     target,
		Headers: map[string]string{"Content-Type": contentType},
		Body:    body,
	}, client.WithThrowOnBadResponse(false))
	if err != nil {
		logging.Errorf(ctx, "Upload failed after %s: %v", time.Since(startTime), err)
		return "", err
	}
	logging.Debugf(ctx, "Upload response received in %s (HTTP %d)", time.Since(startTime), resp.StatusCode)

	if resp.StatusCode == http.StatusConflict {
		return "", ErrVersionExists
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &client.BadResponseError{
			Method:     http.MethodPut,
			URL:        target,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       resp.Body,
		}
	}

	var upload models.UploadResponse
	if err := resp.Decode(&upload); err != nil || upload.URL == "" {
		return "", fmt.Errorf("upload response did not include a status URL: %s", client.FormatResponse(resp.Body, 0))
	}

	logging.Notice(ctx, "Package uploaded; waiting for the signing job")
	logging.Debugf(ctx, "Status URL: %s", upload.URL)
	return upload.URL, nil
}
