package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/voucher-ledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	queue     jobs.Enqueuer
	inspector jobs.QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{queue: client, inspector: inspector, closers: []io.Closer{inspector, client}}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

var triggerable = map[string]func() (*asynq.Task, error){
	jobs.TaskLedgerIntegrity: func() (*asynq.Task, error) {
		return jobs.NewLedgerIntegrityTask(0)
	},
	jobs.TaskPDCDueScan: func() (*asynq.Task, error) {
		return jobs.NewPDCDueScanTask(time.Time{})
	},
	jobs.TaskIdempotencyCleanup: func() (*asynq.Task, error) {
		return jobs.NewIdempotencyCleanupTask(0)
	},
}

// TriggerableJobs lists job names accepted by Trigger.
func TriggerableJobs() []string {
	names := make([]string, 0, len(triggerable))
	for name := range triggerable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.queue == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	build, ok := triggerable[name]
	if !ok {
		return nil, fmt.Errorf("jobs cli: unsupported job %s (supported: %s)", name, strings.Join(TriggerableJobs(), ", "))
	}
	task, err := build()
	if err != nil {
		return nil, err
	}
	return c.queue.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports the state of the worker queues.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueDefault, jobs.QueueAudit} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, stats)
			continue
		}
		if err != nil {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job now",
		Long:      "Enqueue a job now. Jobs: " + strings.Join(TriggerableJobs(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: TriggerableJobs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			c := NewJobsCLI(rt.cfg.RedisAddr)
			defer c.Close()
			return runTrigger(cmd.Context(), c, args[0], cmd.OutOrStdout())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			c := NewJobsCLI(rt.cfg.RedisAddr)
			defer c.Close()
			return runStats(c, cmd.OutOrStdout())
		},
	})
	return cmd
}

func runTrigger(ctx context.Context, c *JobsCLI, name string, out io.Writer) error {
	info, err := c.Trigger(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", name, info.ID, info.Queue)
	return nil
}

func runStats(c *JobsCLI, out io.Writer) error {
	stats, err := c.InspectQueues()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-10s %8s %8s %10s %6s %9s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED")
	for _, s := range stats {
		fmt.Fprintf(out, "%-10s %8d %8d %10d %6d %9d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return nil
}
