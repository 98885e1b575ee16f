package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errCallFailed) {
			printFailure(os.Stderr, "%v", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Tunnel-aware API gateway and retrying client for the financial reports backend",
		Long: `gateway forwards /api/v1 traffic to a backend exposed through a tunnel and
offers a retrying command line client for the same API.

Examples:
  gateway serve --config config.yaml
  BACKEND_URL=https://abc.ngrok-free.app gateway serve
  gateway health --base-url http://localhost:8080
  gateway reports list --symbol AAPL --limit 10`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")

	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newHealthCmd(&configFile))
	root.AddCommand(newReportsCmd(&configFile))

	return root
}
