package config

import (
	"os"
)

// Environment variable names
const (
	EnvAPIKey       = "AMO_API_KEY"
	EnvAPISecret    = "AMO_API_SECRET"
	EnvAPIURLPrefix = "AMO_API_URL_PREFIX"
	EnvAddonID      = "AMO_ADDON_ID"
	EnvAddonVersion = "AMO_ADDON_VERSION"
	EnvXPIPath      = "AMO_XPI_PATH"
	EnvDownloadDir  = "AMO_DOWNLOAD_DIR"
	EnvTimeout      = "AMO_TIMEOUT"
	EnvVerbose      = "AMO_VERBOSE"
	EnvOCIRegistry  = "AMO_OCI_REGISTRY"
	EnvOCIUsername  = "AMO_OCI_USERNAME"
	EnvOCIPassword  = "AMO_OCI_PASSWORD"
	EnvNRLicenseKey = "NEW_RELIC_LICENSE_KEY"
)

// GetAPIKey loads the API key (JWT issuer) from environment variables
func GetAPIKey() string {
	return os.Getenv(EnvAPIKey)
}

// GetAPISecret loads the API secret from environment variables
func GetAPISecret() string {
	return os.Getenv(EnvAPISecret)
}

// GetAPIURLPrefix loads the API prefix override, for example a staging server
func GetAPIURLPrefix() string {
	return os.Getenv(EnvAPIURLPrefix)
}

func GetAddonID() string {
	return os.Getenv(EnvAddonID)
}

func GetAddonVersion() string {
	return os.Getenv(EnvAddonVersion)
}

func GetXPIPath() string {
	return os.Getenv(EnvXPIPath)
}

func GetDownloadDir() string {
	return os.Getenv(EnvDownloadDir)
}

// GetOCIRegistry loads the optional registry signed files are published to
func GetOCIRegistry() string {
	return os.Getenv(EnvOCIRegistry)
}

func GetOCIUsername() string {
	return os.Getenv(EnvOCIUsername)
}

func GetOCIPassword() string {
	return os.Getenv(EnvOCIPassword)
}

// GetNRLicenseKey loads the New Relic license key; empty disables APM
func GetNRLicenseKey() string {
	return os.Getenv(EnvNRLicenseKey)
}
