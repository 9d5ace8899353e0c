// Package repository persists phase reports.
package repository

import (
	"context"

	"github.com/gc-rootscan/internal/report"
)

// ReportRepository stores and retrieves phase reports.
type ReportRepository interface {
	// SaveReport stores a report and its timing rows in one transaction.
	SaveReport(ctx context.Context, r *report.PhaseReport) error

	// GetReport retrieves a report by its id.
	GetReport(ctx context.Context, id string) (*report.PhaseReport, error)

	// ListReports returns the most recent reports, newest first, without timings.
	ListReports(ctx context.Context, limit int) ([]*report.PhaseReport, error)

	// CountIncomplete returns how many stored phases left tasks unclaimed.
	CountIncomplete(ctx context.Context) (int64, error)
}
