// Package cli provides the amo-signer command line.
package cli

import (
	"fmt"

	"amo-signer/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagValues holds raw flag input; only flags the user set override the config
type flagValues struct {
	configFile   string
	apiKey       string
	apiSecret    string
	apiURLPrefix string
	id           string
	version      string
	downloadDir  string
	timeout      string
	verbose      bool
	ociRegistry  string
	ociUsername  string
	ociPassword  string
}

// NewRootCmd creates the amo-signer command
func NewRootCmd(deps Deps, buildVersion string) *cobra.Command {
	flags := &flagValues{}

	cmd := &cobra.Command{
		Use:   "amo-signer [flags] [XPI]",
		Short: "Sign a Firefox add-on package with addons.mozilla.org",
		Long: `amo-signer uploads an add-on package to the addons.mozilla.org signing API,
waits for validation and signing to finish, and downloads the signed files.

Credentials come from --api-key/--api-secret, AMO_API_KEY/AMO_API_SECRET or the
config file. The add-on id and version are read from manifest.json when not given.`,
		Version:      buildVersion,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, deps, flags, args)
			if err != nil {
				return err
			}
			SignAddonAndExit(cmd.Context(), cfg, deps)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configFile, "config", config.DefaultConfigFile, "path to a YAML config file")
	f.StringVar(&flags.apiKey, "api-key", "", "API key (JWT issuer) from the developer hub")
	f.StringVar(&flags.apiSecret, "api-secret", "", "API secret (JWT secret) from the developer hub")
	f.StringVar(&flags.apiURLPrefix, "api-url-prefix", "", "signing API prefix (default "+config.DefaultAPIURLPrefix+")")
	f.StringVar(&flags.id, "id", "", "add-on id (default: read from manifest.json)")
	f.StringVar(&flags.version, "addon-version", "", "add-on version (default: read from manifest.json)")
	f.StringVar(&flags.downloadDir, "download-dir", "", "where signed files are saved (default: working directory)")
	f.StringVar(&flags.timeout, "timeout", "", "how long to wait for signing, as a duration or milliseconds (default 5m)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "log API requests and responses (credentials redacted)")
	f.StringVar(&flags.ociRegistry, "oci-registry", "", "push signed files to this OCI repository (host/repo)")
	f.StringVar(&flags.ociUsername, "oci-username", "", "OCI registry username")
	f.StringVar(&flags.ociPassword, "oci-password", "", "OCI registry password")

	return cmd
}

func loadConfig(cmd *cobra.Command, deps Deps, flags *flagValues, args []string) (*config.Config, error) {
	f := cmd.Flags()

	cfg, err := config.Load(deps.FS, flags.configFile, f.Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if len(args) == 1 {
		cfg.XPIPath = args[0]
	}

	overrideString(f, "api-key", &cfg.APIKey, flags.apiKey)
	overrideString(f, "api-secret", &cfg.APISecret, flags.apiSecret)
	overrideString(f, "api-url-prefix", &cfg.APIURLPrefix, flags.apiURLPrefix)
	overrideString(f, "id", &cfg.ID, flags.id)
	overrideString(f, "addon-version", &cfg.Version, flags.version)
	overrideString(f, "download-dir", &cfg.DownloadDir, flags.downloadDir)
	overrideString(f, "oci-registry", &cfg.OCIRegistry, flags.ociRegistry)
	overrideString(f, "oci-username", &cfg.OCIUsername, flags.ociUsername)
	overrideString(f, "oci-password", &cfg.OCIPassword, flags.ociPassword)

	if f.Changed("timeout") {
		d, err := config.ParseTimeout(flags.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if f.Changed("verbose") {
		cfg.Verbose = flags.verbose
	}

	return cfg, nil
}

func overrideString(f *pflag.FlagSet, name string, dst *string, value string) {
	if f.Changed(name) {
		*dst = value
	}
}
