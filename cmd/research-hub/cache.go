// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the search cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live term cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.terms.Entries()
		if len(entries) == 0 {
			fmt.Println("Cache is empty.")
			return nil
		}
		fmt.Printf("%-50s  %-7s  %-7s  %s\n", "Terms", "Sets", "Records", "Expires")
		fmt.Println(strings.Repeat("-", 90))
		for _, e := range entries {
			records := 0
			for _, rs := range e.Results {
				records += len(rs.Records)
			}
			fmt.Printf("%-50s  %-7d  %-7d  %s\n",
				truncateTitle(strings.Join(e.Terms, ", "), 50), len(e.Results), records,
				e.ExpiresAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove expired cache entries and research records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		nTerms := a.terms.Evict(ctx)
		nResearch := a.research.Evict(ctx)
		fmt.Printf("Evicted %d cache entries and %d research records\n", nTerms, nResearch)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the term cache",
	Long: `Clear empties the term cache. With --all it also deletes every
conversation, attached document and research record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.terms.Clear(ctx); err != nil {
			return err
		}
		if all, _ := cmd.Flags().GetBool("all"); all {
			if err := a.research.Clear(ctx); err != nil {
				return err
			}
			if err := a.memory.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Println("Cleared cache, research records and conversations.")
			return nil
		}
		fmt.Println("Cleared cache.")
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().Bool("all", false, "also clear research records and conversation memory")

	cacheCmd.AddCommand(cacheListCmd, cacheEvictCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
