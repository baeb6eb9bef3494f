// Command server runs the gamification engine: the HTTP API, the metrics endpoint and the cron jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecgtrainer/gamification-engine/internal/api/gamification"
	"github.com/ecgtrainer/gamification-engine/internal/cache"
	"github.com/ecgtrainer/gamification-engine/internal/config"
	"github.com/ecgtrainer/gamification-engine/internal/notify"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/internal/service/achievements"
	"github.com/ecgtrainer/gamification-engine/internal/service/events"
	"github.com/ecgtrainer/gamification-engine/internal/service/leaderboard"
	"github.com/ecgtrainer/gamification-engine/internal/service/scheduler"
	"github.com/ecgtrainer/gamification-engine/internal/service/session"
	"github.com/ecgtrainer/gamification-engine/internal/service/settings"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if !cfg.Database.Postgres.AutoMigrate {
		if err := repository.Migrate(&cfg.Database.Postgres, log); err != nil {
			return err
		}
	}

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if cfg.Database.Postgres.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			return err
		}
	}

	redisCache, err := cache.New(&cfg.Database.Redis, log)
	if err != nil {
		return err
	}
	defer func() { _ = redisCache.Close() }()

	repos := repository.NewRepositories(db)

	configProvider := settings.NewProvider(repos.Config, redisCache, cfg.Gamification.CacheTTL(), log.Component("settings"))
	eventService := events.NewService(repos.Events, log.Component("events"))
	achievementService := achievements.NewService(repos.Achievements, log.Component("achievements"))
	sessionService := session.NewService(db, repos, configProvider, achievementService, cfg.Gamification.MaxAttemptRetries, log.Component("session"))
	leaderboardService := leaderboard.NewService(repos, configProvider, cfg.Gamification, log.Component("leaderboard"))
	notifier := notify.NewClient(&cfg.Notify, log.Component("notify"))

	ctx := context.Background()
	if _, err := configProvider.Get(ctx); err != nil {
		return fmt.Errorf("failed to load gamification config: %w", err)
	}
	if cfg.Gamification.AchievementsFile != "" {
		if _, err := achievementService.SeedFromFile(ctx, cfg.Gamification.AchievementsFile); err != nil {
			return err
		}
	}

	jobs := scheduler.NewService(cfg.Scheduler, repos.Stats, eventService, configProvider, notifier, redisCache, log.Component("scheduler"))
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		if err := redisCache.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := gamification.NewHandler(sessionService, leaderboardService, achievementService, configProvider, eventService, log.Component("api"))
	handler.RegisterRoutes(router)

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}

	if cfg.Metrics.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Prometheus.Path, promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Prometheus.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("Server forced to shutdown")
		}
	}

	log.Info().Msg("Server exited")
	return nil
}
