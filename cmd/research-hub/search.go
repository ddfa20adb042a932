// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-hub/internal/engine"
	"github.com/pdiddy/research-hub/internal/fetch"
	"github.com/pdiddy/research-hub/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [term...]",
	Short: "Search every configured source for a set of terms",
	Long: `Search fetches all configured sources concurrently for the given terms
and prints the scored results, best first. Each argument is one term; quote
multi-word terms ("blood sugar").

Results are cached per term set regardless of term order or case, so a
repeated search is answered from the cache. Use --save to keep the results
in a YAML file and --load to print a saved file without searching.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Bool("json", false, "output result sets as JSON")
	searchCmd.Flags().Bool("csl", false, "output records as CSL-YAML")
	searchCmd.Flags().String("save", "", "write the outcome to a YAML query file")
	searchCmd.Flags().String("load", "", "print a saved query file instead of searching")
	searchCmd.Flags().Bool("quiet", false, "do not report per-source progress")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("load"); path != "" {
		qf, err := engine.ReadQueryFile(path)
		if err != nil {
			return err
		}
		return printOutcome(cmd, qf.Outcome())
	}

	q := types.NewQuery(args...)
	if q.IsEmpty() {
		return fmt.Errorf("at least one search term is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var progress fetch.ProgressFunc
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		progress = func(p fetch.Progress) {
			if p.Err != nil {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s failed: %v\n", p.Completed, p.Total, p.Source, p.Err)
				return
			}
			fmt.Fprintf(os.Stderr, "[%d/%d] %s: %d records\n", p.Completed, p.Total, p.Source, len(p.Result.Records))
		}
	}

	out, err := a.engine.Search(ctx, q, progress)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := engine.WriteQueryFile(path, out, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved %s\n", path)
	}
	return printOutcome(cmd, out)
}

func printOutcome(cmd *cobra.Command, out engine.Outcome) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return engine.FormatJSON(out, os.Stdout)
	}
	if asCSL, _ := cmd.Flags().GetBool("csl"); asCSL {
		return engine.FormatCSL(out, os.Stdout)
	}
	engine.FormatTable(out, os.Stdout)
	return nil
}
