// Package service wires configuration, persistence and the root phase
// runner into one application service.
package service

import (
	"context"
	"fmt"

	"github.com/gc-rootscan/internal/heap"
	"github.com/gc-rootscan/internal/report"
	"github.com/gc-rootscan/internal/repository"
	"github.com/gc-rootscan/internal/storage"
	"github.com/gc-rootscan/pkg/config"
	apperrors "github.com/gc-rootscan/pkg/errors"
	"github.com/gc-rootscan/pkg/utils"
)

// Service is the main application service.
type Service struct {
	config  *config.Config
	logger  utils.Logger
	db      *repository.Repositories
	storage storage.Storage
	runner  *PhaseRunner

	// Tracing enables the database tracing plugin.
	Tracing bool

	stats ServiceStats
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	Phases     int   `json:"phases"`
	Incomplete int   `json:"incomplete"`
	Oops       int64 `json:"oops"`
}

// New creates a new Service instance.
func New(cfg *config.Config, logger utils.Logger) (*Service, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "config is nil")
	}
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &Service{
		config: cfg,
		logger: logger,
	}, nil
}

// Initialize initializes all service components.
func (s *Service) Initialize(ctx context.Context) error {
	s.logger.Info("Initializing service components...")

	if s.config.Database.Enabled {
		if err := s.initDatabase(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := s.initRunner(); err != nil {
		return fmt.Errorf("failed to initialize phase runner: %w", err)
	}

	s.logger.Info("Service components initialized successfully")
	return nil
}

// initDatabase opens the database and migrates the report tables.
func (s *Service) initDatabase(ctx context.Context) error {
	s.logger.Info("Connecting to database (%s)...", s.config.Database.Type)

	gormDB, err := repository.NewGormDB(&repository.DBConfig{
		Type:     s.config.Database.Type,
		Host:     s.config.Database.Host,
		Port:     s.config.Database.Port,
		Database: s.config.Database.Database,
		User:     s.config.Database.User,
		Password: s.config.Database.Password,
		MaxConns: s.config.Database.MaxConns,
		Tracing:  s.Tracing,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to connect", err)
	}

	s.db = repository.NewRepositories(gormDB)
	if err := s.db.Migrate(ctx); err != nil {
		s.db.Close()
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to migrate", err)
	}
	s.logger.Info("Database connection established")

	return nil
}

// initStorage initializes the report storage, if any.
func (s *Service) initStorage() error {
	s.logger.Info("Initializing storage (%s)...", s.config.Storage.Type)

	store, err := storage.NewStorage(&s.config.Storage)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "invalid storage config", err)
	}

	s.storage = store
	return nil
}

func (s *Service) initRunner() error {
	opts := []RunnerOption{WithRunnerLogger(s.logger)}
	if s.db != nil {
		opts = append(opts, WithRepository(s.db.Reports))
	}
	if s.storage != nil {
		codec, err := report.ParseCompression(s.config.Storage.Compression)
		if err != nil {
			return err
		}
		opts = append(opts, WithStorage(s.storage, s.config.Storage.Prefix, codec))
	}

	runner, err := NewPhaseRunner(s.config.GC, opts...)
	if err != nil {
		return err
	}
	s.runner = runner
	return nil
}

// ShapeFromConfig converts heap configuration to a heap shape.
func ShapeFromConfig(c config.HeapConfig) heap.Shape {
	return heap.Shape{
		Objects:       c.Objects,
		GlobalHandles: c.GlobalHandles,
		WeakHandles:   c.WeakHandles,
		ClassLoaders:  c.ClassLoaders,
		CodeBlobs:     c.CodeBlobs,
		Threads:       c.Threads,
		StackDepth:    c.StackDepth,
		DedupStrings:  c.DedupStrings,
		LiveRatio:     c.LiveRatio,
		EvacRatio:     c.EvacRatio,
		Seed:          c.Seed,
	}
}

// RunPhases runs the configured number of phases, each over a freshly built
// heap seeded one past the previous. Incomplete phases are counted and
// reported together once all phases ran; any other error stops the run.
func (s *Service) RunPhases(ctx context.Context) ([]*report.PhaseReport, error) {
	if s.runner == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "service is not initialized")
	}

	shape := ShapeFromConfig(s.config.Heap)
	phases := s.config.GC.Phases
	reports := make([]*report.PhaseReport, 0, phases)
	incomplete := 0

	for i := range phases {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		shape.Seed = s.config.Heap.Seed + uint64(i)
		h, err := heap.Build(shape)
		if err != nil {
			return reports, apperrors.Wrap(apperrors.CodeInvalidInput, "failed to build heap", err)
		}

		rep, err := s.runner.Run(ctx, h)
		if rep != nil {
			reports = append(reports, rep)
			s.stats.Phases++
			s.stats.Oops += rep.Visits.Oops
		}
		if err != nil {
			if !apperrors.IsIncompletePhase(err) {
				return reports, err
			}
			incomplete++
			s.stats.Incomplete++
		}
	}

	if incomplete > 0 {
		return reports, apperrors.Newf(apperrors.CodeIncompletePhase, "%d of %d root phases incomplete", incomplete, phases)
	}
	return reports, nil
}

// RecentReports lists stored reports, newest first.
func (s *Service) RecentReports(ctx context.Context, limit int) ([]*report.PhaseReport, error) {
	if s.db == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "database is not enabled")
	}
	return s.db.Reports.ListReports(ctx, limit)
}

// Stop releases the database connection.
func (s *Service) Stop() error {
	s.logger.Info("Stopping service...")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection: %v", err)
			return err
		}
	}

	s.logger.Info("Service stopped")
	return nil
}

// Stats returns service statistics.
func (s *Service) Stats() ServiceStats {
	return s.stats
}

// HealthCheck performs a health check on the service.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
	}

	return nil
}
