package db

// Schema defines the SQLite schema for the run ledger: one row per
// provisioning run recording the release transition and outcome, with
// indexes for the history views.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
    first_run INTEGER NOT NULL DEFAULT 0,
    release_before TEXT NOT NULL,
    release_after TEXT,
    upgraded_packages INTEGER,
    tool_version TEXT,
    reboot_scheduled INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Status constants
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run represents one provisioning run record
type Run struct {
	ID               int64
	Status           string
	FirstRun         bool
	ReleaseBefore    string
	ReleaseAfter     string
	UpgradedPackages int
	ToolVersion      string
	RebootScheduled  bool
	ErrorMessage     string
	StartedAt        string
	FinishedAt       string
}
