package space

import (
	"context"

	"yqhp/task-space/pkg/types"
)

// ComputerRegistry manages computer registration and status.
type ComputerRegistry interface {
	// Register records a new computer.
	Register(ctx context.Context, info *types.ComputerInfo) error

	// Unregister removes a computer.
	Unregister(ctx context.Context, computerID int) error

	// UpdateStatus replaces a computer's status.
	UpdateStatus(ctx context.Context, computerID int, status *types.ComputerStatus) error

	// Touch records a successful contact with the computer.
	Touch(ctx context.Context, computerID int) error

	// GetComputer returns a single computer's information.
	GetComputer(ctx context.Context, computerID int) (*types.ComputerInfo, error)

	// GetComputerStatus returns a computer's current status.
	GetComputerStatus(ctx context.Context, computerID int) (*types.ComputerStatus, error)

	// ListComputers lists all computers matching the filter.
	ListComputers(ctx context.Context, filter *ComputerFilter) ([]*types.ComputerInfo, error)

	// GetOnlineComputers returns all online computers.
	GetOnlineComputers(ctx context.Context) ([]*types.ComputerInfo, error)

	// WatchComputers watches for computer events.
	WatchComputers(ctx context.Context) (<-chan *types.ComputerEvent, error)
}

// ComputerFilter defines computer filtering criteria.
type ComputerFilter struct {
	Labels map[string]string     // Filter by labels
	States []types.ComputerState // Filter by state
}
