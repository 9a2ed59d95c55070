package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"insights-backend/internal/failure"
	"insights-backend/internal/ingest"
	"insights-backend/internal/record"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	forceRefresh bool
	showDetails  bool
)

func init() {
	scrapeCmd.Flags().BoolVarP(&forceRefresh, "force", "f", false, "Ignore the cache.")
	scrapeCmd.Flags().BoolVar(&showDetails, "details", false, "Also print posts and people.")
	rootCmd.AddCommand(scrapeCmd)

	showCmd.Flags().BoolVar(&showDetails, "details", false, "Also print posts and people.")
	rootCmd.AddCommand(showCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <organization...>",
	Short: "Ingests organizations given by vanity name or page url and prints what was stored.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, configFrom(ctx))
		if err != nil {
			return err
		}
		defer a.Close()

		var errs []error
		for _, id := range args {
			res, err := a.service.GetOrRefresh(ctx, id, forceRefresh)
			if err != nil {
				if failure.IsAuthentication(err) || res.Outcome == ingest.OutcomeDegraded {
					slog.Error("no usable session, run `insights session login` or `insights session import`", "err", err)
				}
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			renderOrganization(*res.Record,
				table.Row{"Outcome", res.Outcome.String()},
				table.Row{"Run", res.RunID},
			)
			if showDetails {
				renderPosts(res.Record.Posts)
				renderPeople(res.Record.People)
			}
		}
		return errors.Join(errs...)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <organization>",
	Short: "Prints the persisted record of an organization without any network access.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config := configFrom(ctx)
		conn, st, err := openStore(config)
		if err != nil {
			return err
		}
		defer conn.Close()

		orgID, err := record.NormalizeOrgID(args[0])
		if err != nil {
			return err
		}
		rec, err := st.Load(ctx, orgID)
		if err != nil {
			return err
		}
		counts, err := st.Counts(ctx, orgID)
		if err != nil {
			return err
		}
		renderOrganization(rec, table.Row{"Comments", counts.Comments})
		if showDetails {
			renderPosts(rec.Posts)
			renderPeople(rec.People)
		}
		return nil
	},
}
