package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/reliefgrid/reliefgrid/pkg/geocode"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <location>",
	Short: "Resolve a free-text location to coordinates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		coord, err := env.Resolver.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(geocode.ToResult(*coord))
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
