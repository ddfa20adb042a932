// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-hub/internal/engine"
	"github.com/pdiddy/research-hub/pkg/types"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Research uploaded documents and inspect their research records",
	Long: `Entity runs research for a document: search queries are derived from its
text, each query is searched, and the combined results are recorded under the
entity ID. A completed record is reused until it expires.`,
}

var entityResearchCmd = &cobra.Command{
	Use:   "research <entity-id> <file>",
	Short: "Derive queries from a document and research them",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[1], err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.engine.ResearchEntity(ctx, args[0], string(content))
		if err != nil {
			return err
		}
		return printRecord(cmd, rec)
	},
}

var entityShowCmd = &cobra.Command{
	Use:   "show <entity-id>",
	Short: "Show the research record for an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, ok := a.research.Get(ctx, args[0])
		if !ok {
			return fmt.Errorf("no research record for %s", args[0])
		}
		return printRecord(cmd, rec)
	},
}

var entityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live research records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		records := a.research.Records()
		if len(records) == 0 {
			fmt.Println("No research records.")
			return nil
		}
		fmt.Printf("%-24s  %-10s  %-7s  %-7s  %s\n", "Entity", "Status", "Queries", "Sets", "Updated")
		fmt.Println(strings.Repeat("-", 80))
		for _, r := range records {
			fmt.Printf("%-24s  %-10s  %-7d  %-7d  %s\n",
				r.EntityID, r.Status, len(r.Queries), len(r.Results), r.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var entityContextCmd = &cobra.Command{
	Use:   "context <entity-id>...",
	Short: "Print the completed research for entities, one result set per source",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		out := engine.Outcome{ResultSets: a.engine.EntityContext(ctx, args)}
		return printOutcome(cmd, out)
	},
}

func printRecord(cmd *cobra.Command, rec types.EntityResearchRecord) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Printf("Entity:  %s\n", rec.EntityID)
	fmt.Printf("Status:  %s\n", rec.Status)
	fmt.Printf("Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	for i, q := range rec.Queries {
		fmt.Printf("Query %d: %s\n", i+1, strings.Join(q.Terms, ", "))
	}
	if len(rec.Results) > 0 {
		fmt.Println()
		engine.FormatTable(engine.Outcome{ResultSets: rec.Results}, os.Stdout)
	}
	return nil
}

func init() {
	entityCmd.PersistentFlags().Bool("json", false, "output as JSON")
	entityContextCmd.Flags().Bool("csl", false, "output records as CSL-YAML")

	entityCmd.AddCommand(entityResearchCmd, entityShowCmd, entityListCmd, entityContextCmd)
	rootCmd.AddCommand(entityCmd)
}
