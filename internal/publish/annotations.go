package publish

import (
	"path/filepath"
	"time"

	"amo-signer/internal/models"
)

// AnnotationAddonID carries the add-on guid on layers and the manifest
const AnnotationAddonID = "org.mozilla.addon.id"

// AnnotationSourceURL records where a signed file was downloaded from
const AnnotationSourceURL = "org.mozilla.addon.source"

func LayerAnnotations(f models.DownloadedFile, guid, version string) map[string]string {
	annotations := map[string]string{
		"org.opencontainers.image.title":   filepath.Base(f.Path),
		"org.opencontainers.image.version": version,
		AnnotationAddonID:                  guid,
	}
	if f.URL != "" {
		annotations[AnnotationSourceURL] = f.URL
	}
	return annotations
}

func ManifestAnnotations(guid, version string) map[string]string {
	return map[string]string{
		"org.opencontainers.image.created": time.Now().UTC().Format(time.RFC3339),
		"org.opencontainers.image.version": version,
		AnnotationAddonID:                  guid,
	}
}
