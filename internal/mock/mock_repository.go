package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gc-rootscan/internal/report"
)

// MockReportRepository is a mock implementation of the ReportRepository interface.
type MockReportRepository struct {
	mock.Mock
}

// SaveReport mocks the SaveReport method.
func (m *MockReportRepository) SaveReport(ctx context.Context, r *report.PhaseReport) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// GetReport mocks the GetReport method.
func (m *MockReportRepository) GetReport(ctx context.Context, id string) (*report.PhaseReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*report.PhaseReport), args.Error(1)
}

// ListReports mocks the ListReports method.
func (m *MockReportRepository) ListReports(ctx context.Context, limit int) ([]*report.PhaseReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*report.PhaseReport), args.Error(1)
}

// CountIncomplete mocks the CountIncomplete method.
func (m *MockReportRepository) CountIncomplete(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
