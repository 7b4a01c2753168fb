package models

import (
	"fmt"
	"net/url"
)

// SignRequest identifies the package version to sign
type SignRequest struct {
	GUID    string `json:"guid"`
	Version string `json:"version"`
	XPIPath string `json:"xpiPath"`
}

// Validate checks that all required fields are present
func (s *SignRequest) Validate() error {
	if s.GUID == "" {
		return fmt.Errorf("add-on id is required")
	}
	if s.Version == "" {
		return fmt.Errorf("add-on version is required")
	}
	if s.XPIPath == "" {
		return fmt.Errorf("xpi path is required")
	}
	return nil
}

// VersionPath is the API path the package is uploaded to
func (s *SignRequest) VersionPath() string {
	return fmt.Sprintf("/addons/%s/versions/%s/", url.PathEscape(s.GUID), url.PathEscape(s.Version))
}

// UploadResponse is the body returned when an upload is accepted
type UploadResponse struct {
	URL string `json:"url"`
}

// SignedFile is one entry of a signing status file list
type SignedFile struct {
	Signed      bool   `json:"signed"`
	DownloadURL string `json:"download_url"`
}

// SigningStatus is the payload returned by the status-check URL
type SigningStatus struct {
	Active    bool `json:"active"`
	Processed bool `json:"processed"`
	Valid     bool `json:"valid"`
	Reviewed  bool `json:"reviewed"`
	// AutomatedSigning is only sent by some API versions; nil means absent
	AutomatedSigning *bool        `json:"automated_signing,omitempty"`
	Files            []SignedFile `json:"files"`
	ValidationURL    string       `json:"validation_url"`
}

// IsActive reports whether the completed version is automatically signed and live.
// automated_signing takes precedence over active when present.
func (s *SigningStatus) IsActive() bool {
	if s.AutomatedSigning != nil {
		return *s.AutomatedSigning
	}
	return s.Active
}

// DownloadedFile is a signed artifact written to disk
type DownloadedFile struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// SignResult is the outcome of a sign operation. Success=false is a normal
// result, not an error.
type SignResult struct {
	Success bool `json:"success"`
	// DownloadedFiles holds local paths in the order the server listed them
	DownloadedFiles []string         `json:"downloadedFiles,omitempty"`
	Files           []DownloadedFile `json:"files,omitempty"`
	// ValidationURL points at the validation report when validation failed
	ValidationURL string `json:"validationUrl,omitempty"`
}
