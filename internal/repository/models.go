package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gc-rootscan/internal/report"
	"github.com/gc-rootscan/internal/timing"
)

// PhaseReportRecord represents the phase_reports table.
type PhaseReportRecord struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ReportID     string    `gorm:"column:report_id;type:varchar(64);uniqueIndex"`
	Mode         string    `gorm:"column:mode;type:varchar(16)"`
	Liveness     string    `gorm:"column:liveness;type:varchar(16)"`
	Workers      int       `gorm:"column:workers"`
	DedupEnabled bool      `gorm:"column:dedup_enabled"`
	Complete     bool      `gorm:"column:complete;index"`
	ErrorInfo    string    `gorm:"column:error_info;type:text"`
	StartedAt    time.Time `gorm:"column:started_at"`
	DurationNs   int64     `gorm:"column:duration_ns"`
	Claims       JSONField `gorm:"column:claims;type:json"`
	Visits       JSONField `gorm:"column:visits;type:json"`
	HeapStats    JSONField `gorm:"column:heap_stats;type:json"`
	CreateTime   time.Time `gorm:"column:create_time;autoCreateTime"`
}

// TableName returns the table name for PhaseReportRecord.
func (PhaseReportRecord) TableName() string {
	return "phase_reports"
}

// PhaseTimingRecord represents the phase_timings table: one row per
// timing phase per report.
type PhaseTimingRecord struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ReportID string `gorm:"column:report_id;type:varchar(64);index"`
	Phase    string `gorm:"column:phase;type:varchar(64)"`
	Workers  int    `gorm:"column:workers"`
	MinNs    int64  `gorm:"column:min_ns"`
	AvgNs    int64  `gorm:"column:avg_ns"`
	MaxNs    int64  `gorm:"column:max_ns"`
	SumNs    int64  `gorm:"column:sum_ns"`
}

// TableName returns the table name for PhaseTimingRecord.
func (PhaseTimingRecord) TableName() string {
	return "phase_timings"
}

// newRecords converts a report to its table rows.
func newRecords(r *report.PhaseReport) (*PhaseReportRecord, []PhaseTimingRecord, error) {
	claims, err := json.Marshal(r.Claims)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal claims: %w", err)
	}
	visits, err := json.Marshal(r.Visits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal visits: %w", err)
	}
	heapStats, err := json.Marshal(r.Heap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal heap stats: %w", err)
	}

	rec := &PhaseReportRecord{
		ReportID:     r.ID,
		Mode:         string(r.Mode),
		Liveness:     r.Liveness,
		Workers:      r.Workers,
		DedupEnabled: r.DedupEnabled,
		Complete:     r.Complete,
		ErrorInfo:    r.Error,
		StartedAt:    r.StartedAt,
		DurationNs:   int64(r.Duration),
		Claims:       claims,
		Visits:       visits,
		HeapStats:    heapStats,
	}

	timings := make([]PhaseTimingRecord, 0, len(r.Timings))
	for _, s := range r.Timings {
		timings = append(timings, PhaseTimingRecord{
			ReportID: r.ID,
			Phase:    s.Phase,
			Workers:  s.Workers,
			MinNs:    int64(s.Min),
			AvgNs:    int64(s.Avg),
			MaxNs:    int64(s.Max),
			SumNs:    int64(s.Sum),
		})
	}
	return rec, timings, nil
}

// ToModel converts the row, plus its timing rows, back to a report.
func (rec *PhaseReportRecord) ToModel(timings []PhaseTimingRecord) (*report.PhaseReport, error) {
	r := &report.PhaseReport{
		ID:           rec.ReportID,
		Mode:         report.Mode(rec.Mode),
		Liveness:     rec.Liveness,
		Workers:      rec.Workers,
		DedupEnabled: rec.DedupEnabled,
		Complete:     rec.Complete,
		Error:        rec.ErrorInfo,
		StartedAt:    rec.StartedAt,
		Duration:     time.Duration(rec.DurationNs),
	}
	if rec.Claims != nil {
		if err := json.Unmarshal(rec.Claims, &r.Claims); err != nil {
			return nil, fmt.Errorf("failed to unmarshal claims: %w", err)
		}
	}
	if rec.Visits != nil {
		if err := json.Unmarshal(rec.Visits, &r.Visits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal visits: %w", err)
		}
	}
	if rec.HeapStats != nil {
		if err := json.Unmarshal(rec.HeapStats, &r.Heap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal heap stats: %w", err)
		}
	}
	for _, t := range timings {
		r.Timings = append(r.Timings, timing.PhaseStat{
			Phase:   t.Phase,
			Workers: t.Workers,
			Min:     time.Duration(t.MinNs),
			Avg:     time.Duration(t.AvgNs),
			Max:     time.Duration(t.MaxNs),
			Sum:     time.Duration(t.SumNs),
		})
	}
	return r, nil
}

// JSONField is a raw JSON column.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}
