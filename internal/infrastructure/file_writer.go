package infrastructure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"rivwidthcloud/internal/domain"
)

// TSVReportWriter writes one line per task outcome, sorted by input index.
type TSVReportWriter struct {
	logger *zap.Logger
}

func NewTSVReportWriter(logger *zap.Logger) *TSVReportWriter {
	return &TSVReportWriter{logger: logger}
}

func (w *TSVReportWriter) WriteReport(filename string, outcomes []domain.TaskOutcome) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := w.Write(file, outcomes); err != nil {
		return err
	}

	w.logger.Info("Report written", zap.String("file", filename), zap.Int("rows", len(outcomes)))
	return file.Close()
}

func (w *TSVReportWriter) Write(out io.Writer, outcomes []domain.TaskOutcome) error {
	sorted := make([]domain.TaskOutcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Task.Index < sorted[j].Task.Index
	})

	writer := bufio.NewWriter(out)

	// Заголовок
	fmt.Fprintln(writer, strings.Join([]string{"index", "landsat_id", "point_id", "mode", "status", "attempts", "request_id", "detail"}, "\t"))

	for _, o := range sorted {
		requestID := ""
		if o.Receipt != nil {
			requestID = o.Receipt.RequestID
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			o.Task.Index,
			o.Task.Identifier,
			o.Task.PointID,
			o.Task.Mode,
			o.Status,
			o.Attempts,
			requestID,
			sanitize(o.Detail))
	}

	return writer.Flush()
}

func sanitize(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
