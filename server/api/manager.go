// Package api defines the REST API handlers and interfaces for the droneforce gateway.
package api

import (
	"context"

	"github.com/DF-AutoPilot/droneforce-contract/bus"
	"github.com/DF-AutoPilot/droneforce-contract/ledger"
	"github.com/DF-AutoPilot/droneforce-contract/node"
	"github.com/DF-AutoPilot/droneforce-contract/txn"
)

// TaskService is the interface the API uses to reach the ledger.
// Implemented by *node.Node.
type TaskService interface {
	Submit(ctx context.Context, tx *txn.Transaction) (*node.Receipt, error)
	Task(ctx context.Context, taskID string) (*node.TaskView, error)
	Tasks(ctx context.Context, f node.Filter) ([]*node.TaskView, error)
	Events(ctx context.Context, f ledger.EntryFilter) ([]*bus.Message, error)
}

var _ TaskService = (*node.Node)(nil)
