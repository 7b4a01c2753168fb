// Package xpi reads add-on metadata out of a packaged extension.
package xpi

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"amo-signer/internal/fileutil"

	"github.com/spf13/afero"
)

// ManifestName is the WebExtension manifest at the root of a package
const ManifestName = "manifest.json"

// ErrNoManifest is returned when the package has no manifest.json
var ErrNoManifest = errors.New("package does not contain " + ManifestName)

type geckoSettings struct {
	Gecko struct {
		ID string `json:"id"`
	} `json:"gecko"`
}

type manifest struct {
	Version                string         `json:"version"`
	BrowserSpecificSetting *geckoSettings `json:"browser_specific_settings,omitempty"`
	Applications           *geckoSettings `json:"applications,omitempty"`
}

// Metadata is what the manifest says about the add-on
type Metadata struct {
	ID      string
	Version string
}

// ReadMetadata opens the package at path and reads the add-on id and version.
// browser_specific_settings.gecko.id is preferred over applications.gecko.id.
// Missing fields come back empty.
func ReadMetadata(fs afero.Fs, path string) (*Metadata, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat package: %w", err)
	}

	archive, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("package is not a valid zip archive: %w", err)
	}

	for _, entry := range archive.File {
		if strings.TrimPrefix(entry.Name, "/") != ManifestName {
			continue
		}
		if entry.UncompressedSize64 > uint64(fileutil.MaxManifestSize) {
			return nil, fmt.Errorf("%s exceeds maximum size of %d bytes", ManifestName, fileutil.MaxManifestSize)
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", ManifestName, err)
		}
		defer rc.Close()

		data, err := fileutil.ReadAllSafe(rc, fileutil.MaxManifestSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", ManifestName, err)
		}
		return parseManifest(data)
	}

	return nil, ErrNoManifest
}

func parseManifest(data []byte) (*Metadata, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestName, err)
	}

	meta := &Metadata{Version: m.Version}
	switch {
	case m.BrowserSpecificSetting != nil && m.BrowserSpecificSetting.Gecko.ID != "":
		meta.ID = m.BrowserSpecificSetting.Gecko.ID
	case m.Applications != nil:
		meta.ID = m.Applications.Gecko.ID
	}
	return meta, nil
}
