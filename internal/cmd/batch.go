package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rivwidthcloud/internal/app"
	"rivwidthcloud/internal/domain"
)

func newBatchCommand(rt *runtime) *cobra.Command {
	var (
		params      paramFlags
		maxTasks    int
		startNumber int
	)

	cmd := &cobra.Command{
		Use:   "batch <csv_file>",
		Short: "Submit river width exports for every row of a CSV file",
		Long: `Submit one export per row of a CSV file with a header row.

Scene mode needs a "landsat_id" column. Point mode (-p) additionally needs
"Point_ID", "Longitude" and "Latitude"; the points must lie within their scenes.
Use --start_number to restart an interrupted batch without resubmitting the rows
before it.`,
		Example: `  rwc batch example_batch_input/example_batch_input.csv
  rwc batch points.csv -p -r 2000 -m 5 -s 120`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shared, err := params.resolve(cmd, rt.config.Defaults)
			if err != nil {
				return err
			}
			if startNumber < 0 {
				return fmt.Errorf("start_number must not be negative, got %d", startNumber)
			}
			limit := rt.config.Workers
			if cmd.Flags().Changed("maximum_number_of_tasks") {
				limit = maxTasks
			}
			if limit <= 0 {
				return fmt.Errorf("maximum_number_of_tasks must be positive, got %d", limit)
			}

			tasks, rejected, err := rt.taskReader(rt.logger).ReadAll(args[0], params.mode(), shared)
			if err != nil {
				return err
			}

			// Отклоненные строки до точки возобновления уже были учтены
			var outcomes []domain.TaskOutcome
			for _, o := range rejected {
				if o.Task.Index >= startNumber {
					rt.metrics.Record(o)
					outcomes = append(outcomes, o)
				}
			}

			submit, guard, err := rt.submitter(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			dispatcher := app.NewDispatcher(rt.logger, guard, rt.metrics)
			dispatched, err := dispatcher.Run(cmd.Context(), domain.BatchRequest{
				Tasks:            tasks,
				StartIndex:       app.ResumePosition(tasks, startNumber),
				ConcurrencyLimit: limit,
			}, submit)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, dispatched...)

			summary, err := rt.finish(outcomes)
			if err != nil {
				return err
			}
			if summary.ResumeFrom >= 0 {
				rt.logger.Warn("Some tasks were not submitted, rerun with --start_number to resume",
					zap.Int("start_number", summary.ResumeFrom))
			}
			return nil
		},
	}

	params.register(cmd)
	cmd.Flags().IntVarP(&maxTasks, "maximum_number_of_tasks", "m", domain.DefaultConcurrencyLimit, "Maximum number of tasks submitted simultaneously")
	cmd.Flags().IntVarP(&startNumber, "start_number", "s", 0, "(Re)starting task number, for restarting an interrupted batch")
	return cmd
}
