package domain

import (
	"context"
	"time"
)

// TaskReader интерфейс для чтения задач
type TaskReader interface {
	ReadAll(path string, mode Mode, params *Parameters) ([]TaskSpec, []TaskOutcome, error)
}

// ConfigReader интерфейс для чтения конфигурации
type ConfigReader interface {
	ReadConfig(path string) (*Config, error)
}

// ExportObject is one file written by a finished remote export.
type ExportObject struct {
	Name    string
	Size    int64
	Updated time.Time
}

// ExportLister lists objects written by remote exports.
type ExportLister interface {
	List(ctx context.Context, bucket, prefix string) ([]ExportObject, error)
	Close() error
}
