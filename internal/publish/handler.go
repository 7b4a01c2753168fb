// Package publish pushes signed add-on packages to an OCI registry.
package publish

import (
	"context"
	"fmt"
	"strings"

	"amo-signer/internal/fileutil"
	"amo-signer/internal/logging"
	"amo-signer/internal/models"
	"amo-signer/internal/retry"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/spf13/afero"
)

// Options selects the target registry. An empty Registry disables publishing.
type Options struct {
	Registry string
	Username string
	Password string
}

// IsEnabled reports whether a registry is configured
func (o Options) IsEnabled() bool {
	return strings.TrimSpace(o.Registry) != ""
}

// Result describes a published artifact
type Result struct {
	Reference string `json:"reference"`
	Digest    string `json:"digest"`
	Layers    int    `json:"layers"`
}

// pushPolicy retries transient registry failures
var pushPolicy = retry.DefaultPolicy("OCI push")

// createClientFunc builds the registry client; tests replace it with an in-memory target
var createClientFunc = func(ctx context.Context, opts Options, fs afero.Fs) (*Client, error) {
	return NewClient(ctx, strings.TrimSpace(opts.Registry), strings.TrimSpace(opts.Username), opts.Password, fs)
}

// HandlePublish pushes the files of a successful sign result. It returns nil
// without doing anything when publishing is disabled.
func HandlePublish(ctx context.Context, opts Options, fs afero.Fs, guid, version string, result *models.SignResult) (*Result, error) {
	if !opts.IsEnabled() {
		logging.Debug(ctx, "OCI publish is not enabled")
		return nil, nil
	}
	if result == nil || !result.Success {
		logging.Debug(ctx, "Nothing signed, skipping OCI publish")
		return nil, nil
	}

	defer logging.Group(ctx, "Publishing signed files")()

	for _, f := range result.Files {
		if err := fileutil.ValidateUpload(fs, f.Path); err != nil {
			return nil, fmt.Errorf("validation failed for signed file: %w", err)
		}
	}

	client, err := createClientFunc(ctx, opts, fs)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCI client: %w", err)
	}

	var desc ocispec.Descriptor
	err = retry.Do(ctx, pushPolicy, func(ctx context.Context) error {
		var pushErr error
		desc, pushErr = client.Push(ctx, guid, version, result.Files)
		return pushErr
	})
	if err != nil {
		return nil, fmt.Errorf("publish failed: %w", err)
	}

	published := &Result{
		Reference: fmt.Sprintf("%s:%s", client.registry, version),
		Digest:    desc.Digest.String(),
		Layers:    len(result.Files),
	}
	logging.Noticef(ctx, "Published %d signed file(s) to %s (digest: %s)", published.Layers, published.Reference, published.Digest)
	return published, nil
}
