package domain

import (
	"time"
)

// Config представляет конфигурацию приложения
type Config struct {
	Log         LogConfig         `yaml:"log"`
	EarthEngine EarthEngineConfig `yaml:"earthengine"`
	Export      ExportConfig      `yaml:"export"`
	Defaults    Parameters        `yaml:"defaults"`
	Workers     int               `yaml:"workers"`
}

type LogConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Outputs  []string       `yaml:"outputs"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig controls rotation of file log outputs.
type RotationConfig struct {
	Enable     bool `yaml:"enable"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

type EarthEngineConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Project           string        `yaml:"project"`
	Algorithm         string        `yaml:"algorithm"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxTries          uint          `yaml:"max_tries"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ExportConfig struct {
	Destination string `yaml:"destination"`
	Bucket      string `yaml:"bucket"`
}

const (
	DestinationDrive = "drive"
	DestinationGCS   = "gcs"
)

// Parameters is the configuration shared by every task of a batch.
type Parameters struct {
	MaxDistance           float64 `yaml:"max_distance"`
	FillSize              float64 `yaml:"fill_size"`
	BranchRemovalDistance float64 `yaml:"max_distance_branch_removal"`
	OutputFormat          string  `yaml:"file_format"`
	WaterMethod           string  `yaml:"water_method"`
	OutputFolder          string  `yaml:"output_folder"`
	Radius                float64 `yaml:"radius"`
}

const (
	FormatCSV = "csv"
	FormatSHP = "shp"

	WaterMethodJones2019 = "Jones2019"
	WaterMethodZou2018   = "Zou2018"
)

// DefaultParameters mirrors the defaults of the command line.
func DefaultParameters() Parameters {
	return Parameters{
		MaxDistance:           4000,
		FillSize:              333,
		BranchRemovalDistance: 500,
		OutputFormat:          FormatCSV,
		WaterMethod:           WaterMethodJones2019,
		Radius:                4000,
	}
}

func (p *Parameters) Validate() error {
	switch p.OutputFormat {
	case FormatCSV, FormatSHP:
	default:
		return &ValidationError{Field: "file_format", Reason: "must be csv or shp, got " + quote(p.OutputFormat)}
	}
	switch p.WaterMethod {
	case WaterMethodJones2019, WaterMethodZou2018:
	default:
		return &ValidationError{Field: "water_method", Reason: "must be Jones2019 or Zou2018, got " + quote(p.WaterMethod)}
	}
	if p.MaxDistance <= 0 {
		return &ValidationError{Field: "max_distance", Reason: "must be positive"}
	}
	if p.FillSize <= 0 {
		return &ValidationError{Field: "fill_size", Reason: "must be positive"}
	}
	if p.BranchRemovalDistance <= 0 {
		return &ValidationError{Field: "max_distance_branch_removal", Reason: "must be positive"}
	}
	if p.Radius <= 0 {
		return &ValidationError{Field: "radius", Reason: "must be positive"}
	}
	return nil
}

// Mode режим пакетной обработки
type Mode int

const (
	ModeScene Mode = iota
	ModePoint
)

func (m Mode) String() string {
	if m == ModePoint {
		return "point"
	}
	return "scene"
}

type Point struct {
	Lon, Lat float64
}

// TaskSpec is one unit of submittable work. Point is set iff Mode is ModePoint.
type TaskSpec struct {
	Index      int
	Identifier string
	PointID    string
	Mode       Mode
	Point      *Point
	Params     *Parameters
}

// ExportPrefix is the description and file name prefix of the remote export.
// Point exports carry the point id so that several points of one scene do not collide.
func (t TaskSpec) ExportPrefix() string {
	if t.Mode == ModePoint {
		return t.Identifier + "_v_" + t.PointID
	}
	return t.Identifier
}

// Receipt acknowledges that the remote service accepted an export job.
type Receipt struct {
	OperationName string
	Description   string
	RequestID     string
	AcceptedAt    time.Time
}

type Status int

const (
	StatusSubmitted Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusFailed {
		return "failed"
	}
	return "submitted"
}

// TaskOutcome результат одной попытки отправки
type TaskOutcome struct {
	Task     TaskSpec
	Status   Status
	Detail   string
	Receipt  *Receipt
	Attempts int
	Duration time.Duration

	// Rejected marks an input row that never became a task. Rerunning cannot fix it.
	Rejected bool
}

// BatchRequest описывает один запуск диспетчера
type BatchRequest struct {
	Tasks            []TaskSpec
	StartIndex       int
	ConcurrencyLimit int
}

const DefaultConcurrencyLimit = 10
