package sweep

import "time"

const (
	WorkflowName        = "matching_sweep"
	ActivityEnqueue     = "matching_enqueue"
	ActivityMaintenance = "matching_maintenance"
)

// Params is carried across continue-as-new, so Tick keeps counting.
type Params struct {
	// Interval between ticks. Zero or negative runs a single tick and returns.
	Interval time.Duration `json:"interval"`
	// MaintenanceEvery runs maintenance on every Nth tick; zero disables it.
	MaintenanceEvery int `json:"maintenance_every"`
	// MaxTicks bounds history per run before continuing as new.
	MaxTicks int `json:"max_ticks"`
	Tick     int `json:"tick"`
}
