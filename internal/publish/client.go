package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"amo-signer/internal/logging"
	"amo-signer/internal/models"
	"amo-signer/internal/retry"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/spf13/afero"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

const (
	// ArtifactType identifies a signed add-on artifact
	ArtifactType = "application/vnd.mozilla.xpi.v1"
	// LayerMediaType is the media type of each signed package layer
	LayerMediaType = "application/x-xpinstall"
	// ConfigMediaType is the media type of the artifact config blob
	ConfigMediaType = "application/vnd.mozilla.xpi.config.v1+json"

	pushTimeout = 5 * time.Minute
)

// Client pushes signed packages to one repository
type Client struct {
	target   oras.Target
	registry string
	fs       afero.Fs
}

// NewClient configures a client for registry ("host[:port]/repository").
// localhost registries are reached over plain HTTP.
func NewClient(ctx context.Context, registry, username, password string, fs afero.Fs) (*Client, error) {
	repo, err := remote.NewRepository(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCI repository: %w", err)
	}

	registryHost := strings.Split(registry, "/")[0]
	repo.Client = &auth.Client{
		Credential: auth.StaticCredential(registryHost, auth.Credential{
			Username: username,
			Password: password,
		}),
	}

	if strings.HasPrefix(registry, "localhost:") || strings.HasPrefix(registry, "127.0.0.1:") {
		repo.PlainHTTP = true
	}

	logging.Debugf(ctx, "OCI client configured: registry=%s, plainHTTP=%v", registry, repo.PlainHTTP)

	return NewClientWithTarget(repo, registry, fs), nil
}

// NewClientWithTarget pushes into an arbitrary oras target (for example an in-memory store)
func NewClientWithTarget(target oras.Target, registry string, fs afero.Fs) *Client {
	return &Client{target: target, registry: registry, fs: fs}
}

// Push uploads every downloaded file as a layer of a single manifest and tags
// it with the add-on version. It returns the manifest descriptor.
func (c *Client) Push(ctx context.Context, guid, version string, files []models.DownloadedFile) (ocispec.Descriptor, error) {
	if len(files) == 0 {
		return ocispec.Descriptor{}, retry.Permanent(errors.New("no signed files to publish"))
	}

	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	layers := make([]ocispec.Descriptor, 0, len(files))
	for _, f := range files {
		layer, err := c.pushLayer(pushCtx, f, guid, version)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		layers = append(layers, layer)
	}

	configBytes, err := json.Marshal(map[string]string{"guid": guid, "version": version})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to marshal config: %w", err)
	}
	configDesc := ocispec.Descriptor{
		MediaType: ConfigMediaType,
		Digest:    digest.FromBytes(configBytes),
		Size:      int64(len(configBytes)),
	}
	if err := c.pushBlob(pushCtx, configDesc, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(configBytes)), nil
	}); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to push config: %w", err)
	}

	manifestDesc, err := oras.PackManifest(pushCtx, c.target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		ConfigDescriptor:    &configDesc,
		Layers:              layers,
		ManifestAnnotations: ManifestAnnotations(guid, version),
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to pack manifest: %w", err)
	}

	logging.Debugf(ctx, "Tagging %s as %s:%s", manifestDesc.Digest, c.registry, version)
	if err := c.target.Tag(pushCtx, manifestDesc, version); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to tag manifest %s:%s - %w", c.registry, version, err)
	}

	return manifestDesc, nil
}

func (c *Client) pushLayer(ctx context.Context, f models.DownloadedFile, guid, version string) (ocispec.Descriptor, error) {
	d, err := digest.Parse(f.Digest)
	if err != nil {
		return ocispec.Descriptor{}, retry.Permanent(fmt.Errorf("invalid digest for %s: %w", f.Path, err))
	}

	desc := ocispec.Descriptor{
		MediaType:   LayerMediaType,
		Digest:      d,
		Size:        f.Size,
		Annotations: LayerAnnotations(f, guid, version),
	}

	logging.Debugf(ctx, "Pushing layer %s (%s, %d bytes)", f.Path, f.Digest, f.Size)
	err = c.pushBlob(ctx, desc, func() (io.ReadCloser, error) {
		return c.fs.Open(f.Path)
	})
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("failed to push %s: %w", f.Path, err)
	}
	return desc, nil
}

// pushBlob skips blobs the target already has
func (c *Client) pushBlob(ctx context.Context, desc ocispec.Descriptor, open func() (io.ReadCloser, error)) error {
	exists, err := c.target.Exists(ctx, desc)
	if err != nil {
		return err
	}
	if exists {
		logging.Debugf(ctx, "Blob %s already present", desc.Digest)
		return nil
	}

	r, err := open()
	if err != nil {
		return err
	}
	defer r.Close()

	return c.target.Push(ctx, desc, r)
}
