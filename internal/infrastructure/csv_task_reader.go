package infrastructure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"rivwidthcloud/internal/domain"
)

const (
	ColumnLandsatID = "landsat_id"
	ColumnPointID   = "Point_ID"
	ColumnLongitude = "Longitude"
	ColumnLatitude  = "Latitude"
)

type CSVTaskReader struct {
	logger *zap.Logger
}

func NewCSVTaskReader(logger *zap.Logger) *CSVTaskReader {
	return &CSVTaskReader{logger: logger}
}

// TaskStream lazily yields one TaskSpec per data row. It cannot be rewound: restarting
// means opening the file again and reading up to the stored offset.
type TaskStream struct {
	file   *os.File
	reader *csv.Reader
	mode   domain.Mode
	params *domain.Parameters

	id, pointID, lon, lat int
	row                   int
}

// Open reads the header and checks the columns required by mode.
func (r *CSVTaskReader) Open(path string, mode domain.Mode, params *domain.Parameters) (*TaskStream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stream, err := newTaskStream(file, mode, params)
	if err != nil {
		file.Close()
		return nil, err
	}
	stream.file = file

	r.logger.Debug("Opened task source",
		zap.String("file", path),
		zap.String("mode", mode.String()))
	return stream, nil
}

func newTaskStream(in io.Reader, mode domain.Mode, params *domain.Parameters) (*TaskStream, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.InputFormatError{Err: errors.New("file has no header row")}
		}
		return nil, &domain.InputFormatError{Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	// Имена столбцов без учета регистра: LANDSAT_ID и landsat_id
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	required := []string{ColumnLandsatID}
	if mode == domain.ModePoint {
		required = append(required, ColumnPointID, ColumnLongitude, ColumnLatitude)
	}
	var missing []string
	for _, name := range required {
		if _, ok := index[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.InputFormatError{Missing: missing}
	}

	stream := &TaskStream{
		reader:  reader,
		mode:    mode,
		params:  params,
		id:      index[ColumnLandsatID],
		pointID: -1,
		lon:     -1,
		lat:     -1,
	}
	if mode == domain.ModePoint {
		stream.pointID = index[strings.ToLower(ColumnPointID)]
		stream.lon = index[strings.ToLower(ColumnLongitude)]
		stream.lat = index[strings.ToLower(ColumnLatitude)]
	}
	return stream, nil
}

// Next returns the next task or io.EOF. A malformed row yields a ValidationError
// together with a TaskSpec carrying only Index and Identifier, so it can be reported.
func (s *TaskStream) Next() (domain.TaskSpec, error) {
	fields, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.TaskSpec{}, io.EOF
		}
		return domain.TaskSpec{}, &domain.InputFormatError{Err: err}
	}

	index := s.row
	s.row++

	rec := domain.Record{
		Index:      index,
		Identifier: field(fields, s.id),
		PointMode:  s.mode == domain.ModePoint,
	}
	stub := domain.TaskSpec{Index: index, Identifier: strings.TrimSpace(rec.Identifier), Mode: s.mode}

	if rec.PointMode {
		rec.PointID = field(fields, s.pointID)
		lon, err := parseCoordinate(field(fields, s.lon))
		if err != nil {
			return stub, &domain.ValidationError{Field: ColumnLongitude, Reason: fmt.Sprintf("row %d: %v", index, err)}
		}
		lat, err := parseCoordinate(field(fields, s.lat))
		if err != nil {
			return stub, &domain.ValidationError{Field: ColumnLatitude, Reason: fmt.Sprintf("row %d: %v", index, err)}
		}
		rec.Lon, rec.Lat = lon, lat
	}

	task, err := domain.BuildTask(rec, s.params)
	if err != nil {
		return stub, err
	}
	return task, nil
}

func (s *TaskStream) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// ReadAll reads every row. Malformed rows are returned as failed outcomes, a missing
// column or broken CSV fails the whole read.
func (r *CSVTaskReader) ReadAll(path string, mode domain.Mode, params *domain.Parameters) ([]domain.TaskSpec, []domain.TaskOutcome, error) {
	stream, err := r.Open(path, mode, params)
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	return r.collect(stream)
}

func (r *CSVTaskReader) collect(stream *TaskStream) ([]domain.TaskSpec, []domain.TaskOutcome, error) {
	var tasks []domain.TaskSpec
	var rejected []domain.TaskOutcome
	for {
		task, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, domain.ErrValidation) {
			r.logger.Warn("Skipping malformed row",
				zap.Int("row", task.Index),
				zap.String("id", task.Identifier),
				zap.Error(err))
			rejected = append(rejected, domain.TaskOutcome{
				Task:     task,
				Status:   domain.StatusFailed,
				Detail:   err.Error(),
				Rejected: true,
			})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, task)
	}

	r.logger.Info("Read tasks",
		zap.Int("tasks", len(tasks)),
		zap.Int("rejected", len(rejected)))
	return tasks, rejected, nil
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseCoordinate(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid coordinate %q", raw)
	}
	return &v, nil
}
