package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newExportsCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "exports <bucket> [folder]",
		Short: "List finished exports in a Cloud Storage bucket",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}

			lister, err := rt.exportLister(cmd.Context(), rt.logger)
			if err != nil {
				return err
			}
			defer lister.Close()

			objects, err := lister.List(cmd.Context(), args[0], prefix)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tUPDATED")
			for _, o := range objects {
				fmt.Fprintf(w, "%s\t%d\t%s\n", o.Name, o.Size, o.Updated.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
