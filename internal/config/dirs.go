package config

import (
	"os"
)

// DefaultConfigFile is looked up in the working directory when --config is not given
const DefaultConfigFile = ".amo-signer.yml"

// ResolveDownloadDir returns dir, or the working directory when dir is empty
func ResolveDownloadDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
