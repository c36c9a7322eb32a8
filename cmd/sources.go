package cmd

import (
	"github.com/spf13/cobra"
)

// newSourcesCmd creates the 'sources' subcommand listing effective descriptors.
func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "sources",
		Short:       "Prints the configured sources",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{readOnlyAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var rows [][]string
			for _, adapter := range appInstance.Adapters() {
				desc := adapter.Descriptor()
				listing, err := desc.ListingURL()
				if err != nil {
					listing = "invalid: " + err.Error()
				}
				state := "enabled"
				if desc.Disabled {
					state = "disabled"
				}
				rows = append(rows, []string{desc.Name, desc.Render, state, listing})
			}
			return writeTable(cmd.OutOrStdout(), []string{"NAME", "RENDER", "STATE", "LISTING"}, rows)
		},
	}
}
