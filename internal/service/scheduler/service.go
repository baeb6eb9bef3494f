// Package scheduler runs the periodic re-engagement and streak-at-risk jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ecgtrainer/gamification-engine/internal/config"
	prommetrics "github.com/ecgtrainer/gamification-engine/internal/metrics"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/service/progression"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// Job names.
const (
	JobReengagement = "reengagement"
	JobStreakRisk   = "streak_risk"
)

// StatsRepository lists users by activity.
type StatsRepository interface {
	ListLastActiveOn(ctx context.Context, day time.Time) ([]models.UserGamificationStats, error)
	ListActiveStreaks(ctx context.Context, since time.Time) ([]models.UserGamificationStats, error)
}

// EventCreator creates personal re-engagement events.
type EventCreator interface {
	CreateReengagementEvent(ctx context.Context, userID uint, multiplier models.MultiplierType, duration time.Duration, inactiveDays int) (*models.XPEvent, bool, error)
}

// ConfigSource supplies the gamification config.
type ConfigSource interface {
	Get(ctx context.Context) (*models.GamificationConfig, error)
}

// Notifier delivers user notifications.
type Notifier interface {
	SendStreakAtRisk(ctx context.Context, userID uint, streak int, hoursRemaining float64) error
	SendReengagement(ctx context.Context, userID uint, inactiveDays int, event *models.XPEvent) error
}

// Locker grants a job run to a single instance. cache.Cache satisfies it.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// Service handles the scheduled jobs.
type Service struct {
	config   config.SchedulerConfig
	stats    StatsRepository
	events   EventCreator
	settings ConfigSource
	notifier Notifier
	locker   Locker
	log      *logger.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// NewService creates a new scheduler service. locker may be nil when a single instance runs.
func NewService(
	cfg config.SchedulerConfig,
	stats StatsRepository,
	events EventCreator,
	settings ConfigSource,
	notifier Notifier,
	locker Locker,
	log *logger.Logger,
) *Service {
	return &Service{
		config:   cfg,
		stats:    stats,
		events:   events,
		settings: settings,
		notifier: notifier,
		locker:   locker,
		log:      log,
		now:      time.Now,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))
	s.now = func() time.Time { return time.Now().In(location) }

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) (int, error)
	}{
		{JobReengagement, s.config.ReengagementSchedule, s.RunReengagement},
		{JobStreakRisk, s.config.StreakRiskSchedule, s.RunStreakRisk},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.schedule, func() {
			s.runJob(context.Background(), job.name, job.run)
		}); err != nil {
			return fmt.Errorf("failed to register %s job: %w", job.name, err)
		}
		s.log.Info().Str("job", job.name).Str("schedule", job.schedule).Msg("Scheduler job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runJob runs one job once per schedule slot across instances and records its outcome.
func (s *Service) runJob(ctx context.Context, name string, run func(ctx context.Context) (int, error)) {
	start := time.Now()
	log := s.log.ForJob(name)

	if s.locker != nil {
		key := fmt.Sprintf("scheduler:lock:%s:%s", name, s.now().Format("2006-01-02T15"))
		acquired, err := s.locker.SetNX(ctx, key, "1", time.Hour)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to acquire job lock, running anyway")
		} else if !acquired {
			log.Debug().Msg("Job already ran on another instance")
			prommetrics.RecordSchedulerJobRun(name, "skipped", time.Since(start).Seconds())
			return
		}
	}

	log.Info().Msg("Running scheduled job")

	count, err := run(ctx)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled job failed")
		prommetrics.RecordSchedulerJobRun(name, "error", time.Since(start).Seconds())
		return
	}

	prommetrics.RecordSchedulerJobRun(name, "success", time.Since(start).Seconds())
	log.Info().
		Int("processed", count).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job completed successfully")
}

// RunReengagement gives every user inactive for exactly one of the configured day thresholds a personal
// XP event and a notification. Returns the number of events created.
func (s *Service) RunReengagement(ctx context.Context) (int, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get config: %w", err)
	}

	multiplier := models.MultiplierType(s.config.ReengagementMultiplier)
	duration := time.Duration(s.config.ReengagementDurationHours) * time.Hour
	today := progression.Day(s.now())

	created := 0
	for _, days := range cfg.InactivityEmailDays {
		users, err := s.stats.ListLastActiveOn(ctx, today.AddDate(0, 0, -days))
		if err != nil {
			return created, fmt.Errorf("failed to list users inactive for %d days: %w", days, err)
		}

		for _, u := range users {
			event, ok, err := s.events.CreateReengagementEvent(ctx, u.UserID, multiplier, duration, days)
			if err != nil {
				s.log.Error().Err(err).Uint("user_id", u.UserID).Int("inactive_days", days).Msg("Failed to create re-engagement event")
				continue
			}
			if !ok {
				continue
			}

			created++
			prommetrics.RecordReengagementEventCreated(days)

			if err := s.notifier.SendReengagement(ctx, u.UserID, days, event); err != nil {
				s.log.Warn().Err(err).Uint("user_id", u.UserID).Msg("Failed to send re-engagement notification")
			}
		}
	}

	return created, nil
}

// RunStreakRisk notifies users whose streak breaks unless they practice, while enough time is left to act.
// Returns the number of users notified.
func (s *Service) RunStreakRisk(ctx context.Context) (int, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get config: %w", err)
	}

	now := s.now()
	// older streaks are already past any grace window
	lookback := 2 + (cfg.StreakGracePeriodHours+23)/24
	users, err := s.stats.ListActiveStreaks(ctx, progression.Day(now).AddDate(0, 0, -lookback))
	if err != nil {
		return 0, fmt.Errorf("failed to list active streaks: %w", err)
	}

	notified := 0
	for _, u := range users {
		status := progression.CheckStreakStatus(u.CurrentStreak, u.LastActivityDate, now, cfg.StreakGracePeriodHours)
		if !status.AtRisk || status.HoursRemaining < s.config.StreakRiskMinHoursLeft {
			continue
		}

		if err := s.notifier.SendStreakAtRisk(ctx, u.UserID, u.CurrentStreak, status.HoursRemaining); err != nil {
			s.log.Warn().Err(err).Uint("user_id", u.UserID).Msg("Failed to send streak-at-risk notification")
			continue
		}
		notified++
	}

	return notified, nil
}
