// Package maintenance runs scheduled database upkeep — integrity checks,
// WAL checkpoints, disk-space monitoring, and periodic VACUUMs — across
// every SQLite database the platform owns. Ported from
// internal/reliability/maintenance_jobs.go's DailyMaintenanceJob and
// WeeklyMaintenanceJob, simplified onto internal/database.DB's own
// HealthCheck/WALCheckpoint/Vacuum/GetStats instead of a separate health
// service, and scheduled with github.com/robfig/cron/v3 the way
// trader-go/internal/scheduler/scheduler.go wraps it.
package maintenance

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/database"
)

// Job is one scheduled maintenance task.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler wraps a cron.Cron to run Jobs on fixed schedules, logging
// each run's outcome.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a Scheduler. Schedules use cron.WithSeconds() syntax
// ("0 0 2 * * *" = daily at 02:00), matching the teacher's scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "maintenance").Logger(),
	}
}

// AddJob registers job to run on schedule.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		s.log.Debug().Str("job", job.Name()).Msg("maintenance job starting")
		if err := job.Run(context.Background()); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Dur("duration_ms", time.Since(start)).Msg("maintenance job failed")
			return
		}
		s.log.Info().Str("job", job.Name()).Dur("duration_ms", time.Since(start)).Msg("maintenance job completed")
	})
	if err != nil {
		return fmt.Errorf("maintenance: register %s: %w", job.Name(), err)
	}
	return nil
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight job to finish, then stops the scheduler.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// DailyJob runs an integrity check and WAL checkpoint across every
// registered database, then verifies available disk space. Matches
// DailyMaintenanceJob's step order; backup verification is handled
// separately by internal/archive rather than inline here, since archiving
// and maintenance now have independent schedules.
type DailyJob struct {
	databases      map[string]*database.DB
	minFreeGB      float64
	criticalFreeGB float64
	dataDir        string
	log            zerolog.Logger
}

// NewDailyJob builds a DailyJob over databases, warning below minFreeGB
// free disk space and returning an error below criticalFreeGB (the
// Scheduler logs it; the job still runs again at its next scheduled time).
func NewDailyJob(databases map[string]*database.DB, dataDir string, minFreeGB, criticalFreeGB float64, log zerolog.Logger) *DailyJob {
	return &DailyJob{
		databases:      databases,
		minFreeGB:      minFreeGB,
		criticalFreeGB: criticalFreeGB,
		dataDir:        dataDir,
		log:            log.With().Str("job", "daily_maintenance").Logger(),
	}
}

func (j *DailyJob) Name() string { return "daily_maintenance" }

func (j *DailyJob) Run(ctx context.Context) error {
	for name, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("critical: %s failed integrity check: %w", name, err)
		}
	}

	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.logDatabaseSizes()
	return nil
}

func (j *DailyJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("stat filesystem %s: %w", j.dataDir, err)
	}

	availableGB := float64(stat.Bavail) * float64(stat.Bsize) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < j.criticalFreeGB {
		return fmt.Errorf("critical: only %.2f GB free (threshold %.2f GB)", availableGB, j.criticalFreeGB)
	}
	if availableGB < j.minFreeGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}
	return nil
}

func (j *DailyJob) logDatabaseSizes() {
	for name, db := range j.databases {
		stats, err := db.GetStats()
		if err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("failed to read database stats")
			continue
		}
		j.log.Info().
			Str("database", name).
			Float64("size_mb", float64(stats.SizeBytes)/1e6).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1e6).
			Msg("database size")
	}
}

// WeeklyJob VACUUMs every ephemeral database to reclaim space. Ledger-
// profile databases (immutable audit trail) are never vacuumed here —
// the caller is expected to pass only cache/history-profile databases.
type WeeklyJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWeeklyJob builds a WeeklyJob over the ephemeral databases to vacuum.
func NewWeeklyJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyJob {
	return &WeeklyJob{databases: databases, log: log.With().Str("job", "weekly_maintenance").Logger()}
}

func (j *WeeklyJob) Name() string { return "weekly_maintenance" }

func (j *WeeklyJob) Run(ctx context.Context) error {
	for name, db := range j.databases {
		j.log.Info().Str("database", name).Msg("running VACUUM")
		if err := db.Vacuum(); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("VACUUM failed")
		}
	}
	return nil
}
