package backend

import (
	"context"

	"casheye/internal/adapters"
	"casheye/internal/amqp"
	"casheye/internal/ledger"
	"casheye/internal/metrics"
	"casheye/internal/ocr"
	"casheye/internal/services"
	"casheye/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired service graph and its cleanup function
type BackendResult struct {
	KV      storage.KV
	Ledger  *ledger.Store
	Service *services.LedgerService
	Metrics *metrics.Metrics

	// Optional collaborators; nil when not configured
	AMQP    *amqp.Client
	OCR     *ocr.Client
	History *adapters.LedgerHistory

	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP publisher, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// OCR collaborator, optional
	OCR ocr.Config
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
