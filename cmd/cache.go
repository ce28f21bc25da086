package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache maintenance",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := initCache(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		removed, err := c.ClearExpired(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cache sweep complete", zap.Int("removed", removed))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
