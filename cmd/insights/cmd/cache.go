package cmd

import (
	"fmt"

	"insights-backend/internal/cache"
	"insights-backend/internal/record"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manages cached organization records.",
}

func init() {
	cacheCmd.AddCommand(cacheDropCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheDropCmd = &cobra.Command{
	Use:   "drop <organization...>",
	Short: "Forgets cached records so the next request extracts them again (badger and redis backends).",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := cache.Open(configFrom(ctx).Cache)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, id := range args {
			orgID, err := record.NormalizeOrgID(id)
			if err != nil {
				return err
			}
			if err := c.Delete(ctx, cache.Key(orgID)); err != nil {
				return fmt.Errorf("%s: %w", orgID, err)
			}
			fmt.Println("dropped", orgID)
		}
		return nil
	},
}
