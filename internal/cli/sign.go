package cli

import (
	"context"
	"fmt"
	"time"

	"amo-signer/internal/auth"
	"amo-signer/internal/client"
	"amo-signer/internal/config"
	"amo-signer/internal/fileutil"
	"amo-signer/internal/logging"
	"amo-signer/internal/models"
	"amo-signer/internal/progress"
	"amo-signer/internal/publish"
	"amo-signer/internal/sign"
	"amo-signer/internal/xpi"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/spf13/afero"
)

// Signer runs one signing operation
type Signer interface {
	Sign(ctx context.Context, req models.SignRequest) (*models.SignResult, error)
}

// SignerConfig is what a signer is built from
type SignerConfig struct {
	APIURLPrefix       string
	APIKey             string
	APISecret          string
	Verbose            bool
	StatusCheckTimeout time.Duration
	DownloadDir        string
	FS                 afero.Fs
}

// createSignerFunc builds the signer for a run. Tests override it.
var createSignerFunc = func(cfg SignerConfig) Signer {
	api := client.NewClient(cfg.APIURLPrefix,
		auth.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret},
		client.WithDebug(cfg.Verbose, nil),
	)
	return sign.NewSigner(api,
		sign.WithFs(cfg.FS),
		sign.WithStatusCheckTimeout(cfg.StatusCheckTimeout),
		sign.WithDownloadDir(cfg.DownloadDir),
		sign.WithProgress(progress.New("Validating add-on ")),
	)
}

// Deps are the process-level collaborators of a run
type Deps struct {
	// Exit terminates the process; tests capture the code instead
	Exit     func(code int)
	FS       afero.Fs
	NewRelic *newrelic.Application
}

// SignAddonAndExit signs the configured package and exits 0 on success or 1 otherwise
func SignAddonAndExit(ctx context.Context, cfg *config.Config, deps Deps) {
	var txn *newrelic.Transaction
	if deps.NewRelic != nil {
		txn = deps.NewRelic.StartTransaction("amo-signer")
		ctx = newrelic.NewContext(ctx, txn)
		logging.Debug(ctx, "New Relic transaction started")
	}

	code := SignAddon(ctx, cfg, deps.FS)

	if txn != nil {
		txn.AddAttribute("exitCode", code)
		txn.End()
	}
	deps.Exit(code)
}

// SignAddon performs a run and returns the process exit code
func SignAddon(ctx context.Context, cfg *config.Config, fs afero.Fs) int {
	if err := cfg.Validate(); err != nil {
		logging.Errorf(ctx, "Invalid configuration: %v", err)
		return 1
	}

	if err := fileutil.ValidateUpload(fs, cfg.XPIPath); err != nil {
		logging.Errorf(ctx, "Cannot sign %s: %v", cfg.XPIPath, err)
		return 1
	}

	req, err := buildRequest(ctx, cfg, fs)
	if err != nil {
		logging.Errorf(ctx, "%v", err)
		return 1
	}

	downloadDir, err := config.ResolveDownloadDir(cfg.DownloadDir)
	if err != nil {
		logging.Errorf(ctx, "Failed to resolve download directory: %v", err)
		return 1
	}

	signer := createSignerFunc(SignerConfig{
		APIURLPrefix:       cfg.APIURLPrefix,
		APIKey:             cfg.APIKey,
		APISecret:          cfg.APISecret,
		Verbose:            cfg.Verbose,
		StatusCheckTimeout: cfg.Timeout,
		DownloadDir:        downloadDir,
		FS:                 fs,
	})

	result, err := signer.Sign(ctx, req)
	if err != nil {
		logging.NoticeErrorWithCategory(ctx, err, "signing", map[string]interface{}{
			"addon.id":      req.GUID,
			"addon.version": req.Version,
		})
		logging.Errorf(ctx, "Signing failed: %v", err)
		return 1
	}

	if !result.Success {
		logging.Error(ctx, "The add-on could not be signed")
		if result.ValidationURL != "" {
			logging.Errorf(ctx, "See the validation results: %s", result.ValidationURL)
		}
		return 1
	}

	for _, f := range result.DownloadedFiles {
		logging.Noticef(ctx, "Signed file: %s", f)
	}

	opts := publish.Options{Registry: cfg.OCIRegistry, Username: cfg.OCIUsername, Password: cfg.OCIPassword}
	if _, err := publish.HandlePublish(ctx, opts, fs, req.GUID, req.Version, result); err != nil {
		logging.NoticeErrorWithCategory(ctx, err, "publish", nil)
		logging.Errorf(ctx, "%v", err)
		return 1
	}

	logging.Notice(ctx, "SUCCESS")
	return 0
}

// buildRequest fills the add-on id and version from the package manifest when
// they were not configured
func buildRequest(ctx context.Context, cfg *config.Config, fs afero.Fs) (models.SignRequest, error) {
	req := models.SignRequest{GUID: cfg.ID, Version: cfg.Version, XPIPath: cfg.XPIPath}
	if req.GUID != "" && req.Version != "" {
		return req, nil
	}

	logging.Debugf(ctx, "Reading add-on id/version from %s", cfg.XPIPath)
	meta, err := xpi.ReadMetadata(fs, cfg.XPIPath)
	if err != nil {
		return req, fmt.Errorf("could not detect the add-on id and version: %w", err)
	}
	if req.GUID == "" {
		req.GUID = meta.ID
	}
	if req.Version == "" {
		req.Version = meta.Version
	}

	if req.GUID == "" {
		return req, fmt.Errorf("could not detect the add-on id; pass --id or set it in %s", xpi.ManifestName)
	}
	if req.Version == "" {
		return req, fmt.Errorf("could not detect the add-on version; pass --addon-version or set it in %s", xpi.ManifestName)
	}

	logging.Noticef(ctx, "Detected add-on %s version %s", req.GUID, req.Version)
	return req, nil
}
