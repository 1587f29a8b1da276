package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrDuplicate = errors.New("scheduler: duplicate job name")
	ErrUnknown   = errors.New("scheduler: unknown job")
)

// Job is one unit of housekeeping work.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState
}

type runState struct {
	mu       sync.Mutex
	running  bool
	runs     uint64
	skipped  uint64
	failures uint64
	lastRun  time.Time
	lastDur  time.Duration
	lastErr  string
}

// ScheduleInfo describes one registered job.
type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout"`
	Next     time.Time     `json:"next"`
	Prev     time.Time     `json:"prev"`
	Running  bool          `json:"running"`
	Runs     uint64        `json:"runs"`
	Skipped  uint64        `json:"skipped"`
	Failures uint64        `json:"failures"`
	LastRun  time.Time     `json:"last_run"`
	LastDur  time.Duration `json:"last_duration"`
	LastErr  string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
