package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"outreach/config"
	"outreach/dispatch"
	"outreach/job/consume_tracking_events"
	"outreach/pkg/logutil"
	"outreach/pkg/service"
	"outreach/repo"
)

func main() {
	var (
		opt = config.NewOptions()
		ctx = logutil.InitZeroLog(context.Background(), "DEBUG")
	)

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		opt.ConfigPath = configPath
	}

	cfg := config.NewConfig()
	if err := cfg.Load(ctx, opt.ConfigPath); err != nil {
		log.Ctx(ctx).Error().Msgf("load config failed: %v", err)
		os.Exit(1)
	}

	// base repo
	baseRepo, err := repo.NewBaseRepo(ctx, cfg.MetadataDB)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("init base repo failed, err: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := baseRepo.Close(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("close base repo failed, err: %v", err)
		}
	}()

	// email log repo
	emailLogRepo := repo.NewEmailLogRepo(ctx, baseRepo)

	jobs := map[string]service.Job{
		"consume-tracking-events": consume_tracking_events.New(cfg.Tracking, dispatch.NewTracker(emailLogRepo)),
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go <job_name>")
		os.Exit(1)
	}

	jobName := os.Args[1]
	job, exists := jobs[jobName]
	if !exists {
		log.Ctx(ctx).Error().Msgf("job %s not found", jobName)
		os.Exit(1)
	}

	if err := runJob(ctx, job); err != nil {
		os.Exit(1)
	}

	log.Ctx(ctx).Info().Msg("job executed successfully")
}

func runJob(ctx context.Context, job service.Job) error {
	if err := job.Init(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("init job err: %v", err)
		return err
	}

	if err := job.Run(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("run job err: %v", err)
		return err
	}

	if err := job.CleanUp(ctx); err != nil {
		log.Ctx(ctx).Error().Msgf("cleanup job err: %v", err)
		return err
	}

	return nil
}
