package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rivwidthcloud/internal/app"
	"rivwidthcloud/internal/domain"
)

func newOneCommand(rt *runtime) *cobra.Command {
	var (
		params   paramFlags
		lon, lat float64
	)

	cmd := &cobra.Command{
		Use:   "one <landsat_id>",
		Short: "Calculate river centerline and width in one Landsat scene",
		Long: `Submit one river width export for a Landsat 5, 7 or 8 SR scene.

In point mode the width is only calculated for the region around the point given by
--lon and --lat, buffered by --radius. The point must lie within the scene.`,
		Example: `  rwc one LC08_L1TP_022034_20130422_20170310_01_T1 -f shp
  rwc one LC08_L1TP_022034_20130422_20170310_01_T1 -f shp -w Zou2018 -p -x -88.263 -y 37.453 -r 2000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shared, err := params.resolve(cmd, rt.config.Defaults)
			if err != nil {
				return err
			}

			rec := domain.Record{Identifier: args[0], PointMode: params.pointMode}
			if cmd.Flags().Changed("lon") {
				rec.Lon = &lon
			}
			if cmd.Flags().Changed("lat") {
				rec.Lat = &lat
			}
			task, err := domain.BuildTask(rec, shared)
			if err != nil {
				return err
			}

			submit, guard, err := rt.submitter(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			dispatcher := app.NewDispatcher(rt.logger, guard, rt.metrics)
			outcomes, err := dispatcher.Run(cmd.Context(), domain.BatchRequest{
				Tasks:            []domain.TaskSpec{task},
				ConcurrencyLimit: 1,
			}, submit)
			if err != nil {
				return err
			}

			if _, err := rt.finish(outcomes); err != nil {
				return err
			}
			if outcomes[0].Status == domain.StatusFailed {
				return fmt.Errorf("submit %s: %s", task.Identifier, outcomes[0].Detail)
			}
			rt.logger.Debug("Export accepted", zap.String("operation", outcomes[0].Receipt.OperationName))
			return nil
		},
	}

	params.register(cmd)
	cmd.Flags().Float64VarP(&lon, "lon", "x", 0, "Longitude of the point location (point mode)")
	cmd.Flags().Float64VarP(&lat, "lat", "y", 0, "Latitude of the point location (point mode)")
	return cmd
}
