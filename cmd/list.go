package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/local"
)

const titleWidth = 60

// newListCmd creates the 'list' subcommand printing the current snapshot.
func newListCmd() *cobra.Command {
	var (
		sourceName string
		limit      int
	)
	cmd := &cobra.Command{
		Use:         "list",
		Short:       "Prints the current snapshot as a table",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{readOnlyAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			records, err := appInstance.Snapshot().Load(cmd.Context())
			if errors.Is(err, local.ErrNoSnapshot) {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshot yet; run `aggregator run` first")
				return nil
			}
			if err != nil {
				return fmt.Errorf("load snapshot: %w", err)
			}
			return writeTable(cmd.OutOrStdout(), []string{"DATE", "SOURCE", "CATEGORY", "DEGREE", "TITLE"},
				recordRows(records, sourceName, limit))
		},
	}
	cmd.Flags().StringVar(&sourceName, "source", "", "only show records from this source")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to print (0 prints all)")
	return cmd
}

func recordRows(records []record.Record, sourceName string, limit int) [][]string {
	var rows [][]string
	for _, rec := range records {
		if sourceName != "" && !strings.EqualFold(rec.Source, sourceName) {
			continue
		}
		rows = append(rows, []string{
			rec.DatePosted,
			rec.Source,
			rec.Category,
			strings.Join(rec.DegreeLevels, ","),
			clip(rec.Title, titleWidth),
		})
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows
}
