// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the gamification engine.
var (
	// Attempt orchestration.
	AttemptsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_attempts_processed_total",
			Help: "Total number of completed attempts processed",
		},
		[]string{"status"},
	)

	AttemptRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_attempt_retries_total",
			Help: "Total number of attempt orchestrations retried after a concurrent stats update",
		},
	)

	AttemptDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gamification_attempt_duration_seconds",
			Help:    "Time taken to process a completed attempt",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	// XP and levels.
	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_xp_awarded_total",
			Help: "Total XP awarded for attempts",
		},
		[]string{"difficulty", "event"},
	)

	XPPerAttempt = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamification_xp_per_attempt",
			Help:    "XP awarded per attempt",
			Buckets: prometheus.LinearBuckets(0, 25, 12), // 0 to 275 XP
		},
		[]string{"difficulty"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_level_ups_total",
			Help: "Total number of level-ups",
		},
	)

	// Streaks, events and achievements.
	StreakMilestonesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_streak_milestones_total",
			Help: "Total number of streak milestones reached",
		},
		[]string{"milestone"},
	)

	EventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_events_applied_total",
			Help: "Total number of attempts that earned XP under an event",
		},
		[]string{"multiplier", "source"},
	)

	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_achievements_unlocked_total",
			Help: "Total number of achievements unlocked",
		},
		[]string{"achievement"},
	)

	AchievementConditionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_achievement_condition_errors_total",
			Help: "Total number of achievements skipped because their conditions could not be parsed",
		},
		[]string{"achievement"},
	)

	// Config provider.
	ConfigReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_config_reads_total",
			Help: "Config reads by the layer that served them",
		},
		[]string{"source"},
	)

	ConfigFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_config_fallbacks_total",
			Help: "Total number of times an invalid stored config was replaced by the last known good one",
		},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~128s
		},
		[]string{"job"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	ReengagementEventsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_reengagement_events_created_total",
			Help: "Total personal re-engagement events created",
		},
		[]string{"inactive_days"},
	)

	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total notifications handed to the email automation webhook",
		},
		[]string{"kind"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total failed notification attempts",
		},
		[]string{"kind"},
	)
)

// RecordAttempt records the outcome of one orchestration.
func RecordAttempt(status string, seconds float64) {
	AttemptsProcessedTotal.WithLabelValues(status).Inc()
	AttemptDurationSeconds.Observe(seconds)
}

// RecordAttemptRetry records a retried orchestration.
func RecordAttemptRetry() {
	AttemptRetriesTotal.Inc()
}

// RecordXPAwarded records XP earned for an attempt.
func RecordXPAwarded(difficulty, event string, xp int) {
	if event == "" {
		event = "none"
	}
	XPAwardedTotal.WithLabelValues(difficulty, event).Add(float64(xp))
	XPPerAttempt.WithLabelValues(difficulty).Observe(float64(xp))
}

// RecordLevelUp records a level-up.
func RecordLevelUp() {
	LevelUpsTotal.Inc()
}

// RecordStreakMilestone records a reached streak milestone.
func RecordStreakMilestone(milestone int) {
	StreakMilestonesTotal.WithLabelValues(strconv.Itoa(milestone)).Inc()
}

// RecordEventApplied records an attempt boosted by an event.
func RecordEventApplied(multiplier, source string) {
	EventsAppliedTotal.WithLabelValues(multiplier, source).Inc()
}

// RecordAchievementUnlocked records an achievement unlock.
func RecordAchievementUnlocked(key string) {
	AchievementsUnlockedTotal.WithLabelValues(key).Inc()
}

// RecordAchievementConditionError records an achievement skipped for bad conditions.
func RecordAchievementConditionError(key string) {
	AchievementConditionErrorsTotal.WithLabelValues(key).Inc()
}

// RecordConfigRead records which layer served a config read.
func RecordConfigRead(source string) {
	ConfigReadsTotal.WithLabelValues(source).Inc()
}

// RecordConfigFallback records use of the last known good config.
func RecordConfigFallback() {
	ConfigFallbacksTotal.Inc()
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string, seconds float64) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// RecordReengagementEventCreated records a personal re-engagement event.
func RecordReengagementEventCreated(inactiveDays int) {
	ReengagementEventsCreatedTotal.WithLabelValues(strconv.Itoa(inactiveDays)).Inc()
}

// RecordNotificationSent records a successful notification.
func RecordNotificationSent(kind string) {
	NotificationsSentTotal.WithLabelValues(kind).Inc()
}

// RecordNotificationFailed records a failed notification.
func RecordNotificationFailed(kind string) {
	NotificationsFailedTotal.WithLabelValues(kind).Inc()
}
