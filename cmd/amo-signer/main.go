package main

import (
	"context"
	"os"
	"time"

	"amo-signer/internal/cli"
	"amo-signer/internal/config"
	"amo-signer/internal/logging"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/spf13/afero"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// osExit is replaced in tests
var osExit = os.Exit

// initNewRelic initializes the New Relic application
// Returns nil if NEW_RELIC_LICENSE_KEY is not set (silent no-op mode)
func initNewRelic(ctx context.Context) *newrelic.Application {
	licenseKey := config.GetNRLicenseKey()
	if licenseKey == "" {
		logging.Debug(ctx, "New Relic disabled - no license key")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName("amo-signer"),
		newrelic.ConfigLicense(licenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigFromEnvironment(),
	)
	if err != nil {
		logging.Warnf(ctx, "Failed to init New Relic: %v", err)
		return nil
	}

	logging.Notice(ctx, "New Relic APM enabled - waiting for connection...")

	// Wait for the app to connect (max 10 seconds)
	if err := app.WaitForConnection(10 * time.Second); err != nil {
		logging.Warnf(ctx, "New Relic connection timeout: %v - will try to send data anyway", err)
	}

	return app
}

// exitFunc flushes New Relic before terminating the process
func exitFunc(ctx context.Context, nrApp *newrelic.Application) func(int) {
	return func(code int) {
		if nrApp != nil {
			logging.Debug(ctx, "Shutting down New Relic - waiting up to 15 seconds to send data...")
			nrApp.Shutdown(15 * time.Second)
		}
		osExit(code)
	}
}

func main() {
	ctx := context.Background()

	nrApp := initNewRelic(ctx)
	exit := exitFunc(ctx, nrApp)

	cmd := cli.NewRootCmd(cli.Deps{
		Exit:     exit,
		FS:       afero.NewOsFs(),
		NewRelic: nrApp,
	}, version)

	if err := cmd.ExecuteContext(ctx); err != nil {
		logging.Errorf(ctx, "%v", err)
		exit(1)
	}
}
