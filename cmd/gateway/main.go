// Command gateway is the CLI entrypoint, grounded on the teacher's
// main.go wiring order (config -> logger -> registries -> router ->
// HTTP server -> signal-driven graceful shutdown) behind a cobra root
// command with serve/validate-config subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	gatewayConfigPath string
	backendsConfigPath string
)

func main() {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Generative-AI inference gateway",
	}
	root.PersistentFlags().StringVar(&gatewayConfigPath, "config", "config/gateway.yaml", "path to the gateway YAML config")
	root.PersistentFlags().StringVar(&backendsConfigPath, "backends", "", "path to a split backends YAML file (optional)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateConfigCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
