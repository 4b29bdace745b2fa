package storage

import (
	"github.com/cuemby/scrun/pkg/types"
)

// Store persists run history across invocations of the same job
type Store interface {
	// Attempts
	SaveAttempt(attempt *types.RunAttempt) error
	ListAttempts(jobID string) ([]*types.RunAttempt, error)

	// RunSize is the node count of the job's last launch, 0 if unknown
	SetRunSize(jobID string, nodes int) error
	RunSize(jobID string) (int, error)

	// Utility
	Close() error
}
