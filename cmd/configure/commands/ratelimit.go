package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inkwell/inkwell-api/internal/config"
	"github.com/inkwell/inkwell-api/internal/database"
	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/inkwell/inkwell-api/internal/ratelimit"
)

// NewRatelimitCmd creates the ratelimit command with list, set and tiers subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long:  "Show or update the global flood guard rate (e.g. 50-S, 1000-M) and inspect per-route tiers.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	cmd.AddCommand(newRatelimitTiersCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the flood guard rate stored in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			c, err := database.NewRatelimitConfigRepository(db).Get(context.Background())
			if err != nil {
				return fmt.Errorf("get ratelimit config: %w", err)
			}
			out := cmd.OutOrStdout()
			if c == nil {
				fmt.Fprintln(out, "No rate limit configuration in database. The server default applies until 'ratelimit set' is used.")
				return nil
			}
			fmt.Fprintln(out, "Flood guard configuration:")
			fmt.Fprintf(out, "  Rate:    %s\n", c.Rate)
			fmt.Fprintf(out, "  Updated: %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the flood guard rate",
		Long:  "Update the global flood guard rate (e.g. 50-S, 1000-M, 10000-H). Running servers pick it up on their next reload.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rate = strings.TrimSpace(rate)
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 50-S, 1000-M)")
			}
			if _, err := database.NormalizeRate(rate); err != nil {
				return err
			}
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			c := &models.RatelimitConfig{Rate: rate}
			if err := database.NewRatelimitConfigRepository(db).Set(context.Background(), c); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flood guard rate set to %s.\n", c.Rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 50-S, 1000-M, 10000-H) (required)")
	return cmd
}

func newRatelimitTiersCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "Print the per-route tier budgets the server would load",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				cfg, err := config.LoadWithoutDatabase()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				file = cfg.RateLimitTiersFile
			}
			tiers, err := ratelimit.LoadTiers(file)
			if err != nil {
				return err
			}
			return printTiers(cmd.OutOrStdout(), tiers)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Tier YAML file (defaults to RATELIMIT_TIERS_FILE)")
	return cmd
}

func printTiers(w io.Writer, tiers ratelimit.Tiers) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tWINDOW\tMAX\tBLOCK")
	for _, name := range tiers.Names() {
		c := tiers[name]
		block := c.BlockDuration.String()
		if c.BlockDuration == 0 {
			block = "until window ends"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, c.Window, c.MaxRequests, block)
	}
	return tw.Flush()
}
