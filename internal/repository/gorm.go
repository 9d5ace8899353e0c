package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gc-rootscan/internal/report"
	apperrors "github.com/gc-rootscan/pkg/errors"
)

// GormReportRepository implements ReportRepository using GORM.
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository.
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

// SaveReport saves a report and its timings.
func (r *GormReportRepository) SaveReport(ctx context.Context, rep *report.PhaseReport) error {
	rec, timings, err := newRecords(rep)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to encode report", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(timings) == 0 {
			return nil
		}
		return tx.Create(&timings).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save report", err)
	}
	return nil
}

// GetReport retrieves a report with its timings.
func (r *GormReportRepository) GetReport(ctx context.Context, id string) (*report.PhaseReport, error) {
	var rec PhaseReportRecord
	err := r.db.WithContext(ctx).Where("report_id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("report not found: %s", id), err)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get report", err)
	}

	var timings []PhaseTimingRecord
	err = r.db.WithContext(ctx).Where("report_id = ?", id).Order("id").Find(&timings).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get report timings", err)
	}

	return rec.ToModel(timings)
}

// ListReports lists the latest reports.
func (r *GormReportRepository) ListReports(ctx context.Context, limit int) ([]*report.PhaseReport, error) {
	var recs []PhaseReportRecord
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list reports", err)
	}

	out := make([]*report.PhaseReport, 0, len(recs))
	for i := range recs {
		rep, err := recs[i].ToModel(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// CountIncomplete counts reports whose phase was incomplete.
func (r *GormReportRepository) CountIncomplete(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&PhaseReportRecord{}).Where("complete = ?", false).Count(&n).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to count incomplete reports", err)
	}
	return n, nil
}
