package main

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func ConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `This command resolves flags, KATANA_* environment variables and --config the way the node
does and prints the result as YAML. The output is a valid --config file.`,
		Args: cobra.NoArgs,
		RunE: printConfig,
	}
}

func printConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	settings := make(map[string]any)
	if err = mapstructure.Decode(cfg, &settings); err != nil {
		return err
	}

	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err = encoder.Encode(settings); err != nil {
		return err
	}
	return encoder.Close()
}
