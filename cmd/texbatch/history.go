// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/texbatch/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent results from the build journal",
	Long: `History reads the SQLite journal written by pdf and docx runs with
--journal and lists the most recent fragment results, newest first.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlag("journal", cmd.Flags().Lookup("journal"))
	},
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("journal", "", "journal database to read")
	historyCmd.Flags().Int("limit", 20, "maximum number of entries")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("journal")
	if path == "" {
		return fmt.Errorf("journal path required: use --journal or set journal in texbatch.yaml")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries.")
		return nil
	}
	fmt.Fprintf(out, "%-4s  %-20s  %-5s  %-24s  %-8s  %-8s  %s\n",
		"RUN", "RECORDED", "FMT", "FRAGMENT", "STATUS", "STAGE", "SOURCE")
	for _, e := range entries {
		fmt.Fprintf(out, "%-4d  %-20s  %-5s  %-24s  %-8s  %-8s  %s\n",
			e.RunID, e.RecordedAt.Local().Format("2006-01-02 15:04:05"), e.Format,
			truncate(e.Fragment, 24), e.Status, e.Stage, shortDigest(e.SourceDigest))
	}
	fmt.Fprintf(out, "\n%d entries\n", len(entries))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// shortDigest keeps the algorithm tag and the first 12 hex digits.
func shortDigest(d string) string {
	if len(d) > len("blake3:")+12 {
		return d[:len("blake3:")+12]
	}
	return d
}
