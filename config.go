package scheduler

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Backend selects which interchangeable thread-pool implementation a
// Scheduler dispatches tasks on.
type Backend int

const (
	// BackendCentral is one shared queue per priority, N workers.
	BackendCentral Backend = iota
	// BackendWorkStealing is one deque per priority per worker, with
	// cooperative stealing.
	BackendWorkStealing
)

// Config holds every knob the scheduler's operators can tune.
type Config struct {
	// Backend selects the thread-pool implementation.
	Backend Backend

	// MinThreads and MaxThreads bound the pool's worker count. The
	// pool is sized at MaxThreads at Start() (see SPEC_FULL.md's Open
	// Questions: dynamic resizing between the two is not implemented).
	MinThreads int
	MaxThreads int

	// FifoMax is the bounded queue capacity per priority, indexed by
	// Priority.
	FifoMax [numPriorities]int64

	// OngoingLowPriorityLimit caps concurrent low-priority tasks
	// actually executing (distinct from FifoMax[PriorityLow], which
	// caps how many may be queued).
	OngoingLowPriorityLimit int64

	// QueueTimeViolationThresholdMS is compared against a low-priority
	// task's queue time at dequeue; exceeding it increments the
	// queue-time-violations counter.
	QueueTimeViolationThresholdMS int64

	// UnavailabilityQueueFillGrade is the fill grade at or above which
	// the scheduler considers itself overloaded.
	UnavailabilityQueueFillGrade float64

	// PrioritySkipThreshold is the number of dequeues of one priority,
	// with no less urgent priority served in between, after which a
	// worker passes that priority over while any less urgent priority
	// has work, to prevent starvation.
	PrioritySkipThreshold int64

	// CronWakeIntervalMax caps the cron goroutine's wait when something
	// is pending but not yet due, keeping it responsive to new, shorter
	// entries inserted in the meantime.
	CronWakeIntervalMax time.Duration

	// ContinuationPriority overrides LaneContinuation's priority,
	// configured independently of the fixed lane→priority table.
	ContinuationPriority Priority
}

// DefaultConfig returns sensible defaults derived from a base of 4: 4
// minimum and 16 maximum threads shared by all priorities, a 64-deep
// maintenance queue and 4096-deep queues for the other priorities, and
// at most 16 concurrently executing low-priority tasks.
func DefaultConfig() Config {
	const base = 4
	return Config{
		Backend:    BackendCentral,
		MinThreads: base,
		MaxThreads: base * 4,
		FifoMax: [numPriorities]int64{
			PriorityMaintenance: 64,
			PriorityHigh:        4096,
			PriorityMedium:      4096,
			PriorityLow:         4096,
		},
		OngoingLowPriorityLimit:       int64(base * 4),
		QueueTimeViolationThresholdMS: 5000,
		UnavailabilityQueueFillGrade:  0.9,
		PrioritySkipThreshold:         8,
		CronWakeIntervalMax:           10 * time.Millisecond,
		ContinuationPriority:          PriorityHigh,
	}
}

// LoadConfig reads a Config from a YAML/TOML/JSON file at path,
// layering environment-variable overrides (SCHED_* prefix) on top, the
// idiomatic viper pattern this pack's repos use for a server-embedded
// component configured at process start.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SCHED")
	v.AutomaticEnv()

	v.SetDefault("backend", "central")
	v.SetDefault("min_threads", cfg.MinThreads)
	v.SetDefault("max_threads", cfg.MaxThreads)
	v.SetDefault("ongoing_low_priority_limit", cfg.OngoingLowPriorityLimit)
	v.SetDefault("queue_time_violation_threshold_ms", cfg.QueueTimeViolationThresholdMS)
	v.SetDefault("unavailability_queue_fill_grade", cfg.UnavailabilityQueueFillGrade)
	v.SetDefault("priority_skip_threshold", cfg.PrioritySkipThreshold)
	v.SetDefault("cron_wake_interval_max_ms", cfg.CronWakeIntervalMax.Milliseconds())

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("scheduler: reading config %q: %w", path, err)
	}

	switch v.GetString("backend") {
	case "central":
		cfg.Backend = BackendCentral
	case "work-stealing", "workstealing":
		cfg.Backend = BackendWorkStealing
	default:
		return Config{}, fmt.Errorf("scheduler: unknown backend %q", v.GetString("backend"))
	}

	cfg.MinThreads = v.GetInt("min_threads")
	cfg.MaxThreads = v.GetInt("max_threads")
	cfg.OngoingLowPriorityLimit = v.GetInt64("ongoing_low_priority_limit")
	cfg.QueueTimeViolationThresholdMS = v.GetInt64("queue_time_violation_threshold_ms")
	cfg.UnavailabilityQueueFillGrade = v.GetFloat64("unavailability_queue_fill_grade")
	cfg.PrioritySkipThreshold = v.GetInt64("priority_skip_threshold")
	cfg.CronWakeIntervalMax = time.Duration(v.GetInt64("cron_wake_interval_max_ms")) * time.Millisecond

	if v.IsSet("fifo_max.maintenance") {
		cfg.FifoMax[PriorityMaintenance] = v.GetInt64("fifo_max.maintenance")
	}
	if v.IsSet("fifo_max.high") {
		cfg.FifoMax[PriorityHigh] = v.GetInt64("fifo_max.high")
	}
	if v.IsSet("fifo_max.medium") {
		cfg.FifoMax[PriorityMedium] = v.GetInt64("fifo_max.medium")
	}
	if v.IsSet("fifo_max.low") {
		cfg.FifoMax[PriorityLow] = v.GetInt64("fifo_max.low")
	}

	return cfg, nil
}
