package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neuralfoundry-coder/generative-img-serving/gwconfig"
)

func newValidateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the gateway configuration without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := gwconfig.Load(gatewayConfigPath, backendsConfigPath)
			if err != nil {
				return err
			}
			fmt.Printf("config ok: %d backend(s) configured, listening on %s:%d\n",
				len(settings.AllBackendConfigs()), settings.Server.Host, settings.Server.Port)
			return nil
		},
	}
}
