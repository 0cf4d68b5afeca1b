package backup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/starford/notesync/internal/tracker"
)

// DefaultSchedule checks every five minutes whether a backup is due.
const DefaultSchedule = "*/5 * * * *"

// Scheduler periodically runs a backup when auto-backup is on and a local
// change is newer than the last backup.
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	tracker *tracker.Tracker
	logger  *slog.Logger
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("backup: parse schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// NewScheduler parses a standard five-field cron expression.
func NewScheduler(expr string, engine *Engine, tr *tracker.Tracker, logger *slog.Logger) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		engine:  engine,
		tracker: tr,
		logger:  logger,
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.Tick(context.Background()) }))
	return s, nil
}

// Tick runs one check. It returns true when a backup was attempted.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.tracker.AutoBackupEnabled(ctx) {
		return false
	}
	if !s.tracker.BackupDue(ctx) {
		return false
	}
	res := s.engine.Backup(ctx, "")
	switch {
	case res.Err != nil:
		s.logger.Warn("scheduler: backup failed", slog.String("error", res.Error))
	case res.Skipped != "":
		s.logger.Debug("scheduler: backup skipped", slog.String("reason", res.Skipped))
	default:
		s.logger.Info("scheduler: backup done", slog.String("backup_date", res.BackupDate))
	}
	return true
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// a running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler: started", slog.Int("entries", len(s.cron.Entries())))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler: stopped")
	return nil
}
