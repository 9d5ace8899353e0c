// Package storage uploads phase reports to object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/gc-rootscan/internal/report"
	"github.com/gc-rootscan/pkg/config"
	apperrors "github.com/gc-rootscan/pkg/errors"
)

// Storage defines the object storage operations reports need.
type Storage interface {
	// Put writes the content of reader to key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get opens the object at key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns where key can be fetched from.
	URL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage creates the configured backend. Type "none" yields a nil
// Storage and no error.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeNone:
		return nil, nil
	case StorageTypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig validates the storage configuration.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return fmt.Errorf("storage config is nil")
	}

	switch StorageType(cfg.Type) {
	case StorageTypeNone:
		return nil
	case "", StorageTypeLocal:
		if cfg.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	if _, err := report.ParseCompression(cfg.Compression); err != nil {
		return err
	}
	return nil
}

// ReportKey returns the object key for r under prefix, laid out by start date.
func ReportKey(prefix string, r *report.PhaseReport, c report.Compression) string {
	return path.Join(prefix, r.StartedAt.UTC().Format("2006/01/02"), r.ID+c.Extension())
}

// UploadReport encodes r and stores it, returning the key it was written to.
func UploadReport(ctx context.Context, s Storage, prefix string, r *report.PhaseReport, c report.Compression) (string, error) {
	data, err := report.Encode(r, c)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUploadError, "failed to encode report", err)
	}

	key := ReportKey(prefix, r, c)
	if err := s.Put(ctx, key, bytes.NewReader(data), c.ContentType()); err != nil {
		return "", apperrors.Wrap(apperrors.CodeUploadError, fmt.Sprintf("failed to upload report %s", r.ID), err)
	}
	return key, nil
}

// DownloadReport fetches and decodes a report stored by UploadReport.
func DownloadReport(ctx context.Context, s Storage, key string, c report.Compression) (*report.PhaseReport, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", key, err)
	}
	return report.Decode(data, c)
}
