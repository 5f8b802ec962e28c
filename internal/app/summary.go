package app

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rivwidthcloud/internal/domain"
)

// Summary агрегированные результаты запуска
type Summary struct {
	Total     int
	Submitted int
	Failed    int
	Retried   int

	MeanLatency   time.Duration
	StdDevLatency time.Duration
	P95Latency    time.Duration
	MaxLatency    time.Duration

	// ResumeFrom is the lowest input index that failed and can be resubmitted, -1 if
	// none. Rejected rows are skipped.
	ResumeFrom int
}

func Summarize(outcomes []domain.TaskOutcome) Summary {
	s := Summary{Total: len(outcomes), ResumeFrom: -1}

	var latencies []float64
	for _, o := range outcomes {
		switch o.Status {
		case domain.StatusSubmitted:
			s.Submitted++
		default:
			s.Failed++
			if o.Rejected {
				break
			}
			if s.ResumeFrom < 0 || o.Task.Index < s.ResumeFrom {
				s.ResumeFrom = o.Task.Index
			}
		}
		if o.Attempts > 1 {
			s.Retried++
		}
		if o.Attempts > 0 {
			latencies = append(latencies, o.Duration.Seconds())
		}
	}

	if len(latencies) == 0 {
		return s
	}

	sort.Float64s(latencies)
	mean, std := stat.MeanStdDev(latencies, nil)
	if math.IsNaN(std) {
		std = 0
	}
	s.MeanLatency = seconds(mean)
	s.StdDevLatency = seconds(std)
	s.P95Latency = seconds(stat.Quantile(0.95, stat.Empirical, latencies, nil))
	s.MaxLatency = seconds(floats.Max(latencies))
	return s
}

func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("total", s.Total),
		zap.Int("submitted", s.Submitted),
		zap.Int("failed", s.Failed),
		zap.Int("retried", s.Retried),
		zap.Duration("mean_latency", s.MeanLatency),
		zap.Duration("stddev_latency", s.StdDevLatency),
		zap.Duration("p95_latency", s.P95Latency),
		zap.Duration("max_latency", s.MaxLatency),
		zap.Int("resume_from", s.ResumeFrom),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
