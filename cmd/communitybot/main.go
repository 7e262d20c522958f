// Command communitybot runs the Discord community bot: it answers
// questions in the configured channel through the selected LLM backend
// and, when configured, runs the source agent collectors that feed the
// knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bwmarrin/discordgo"

	"communitybot/pkg/agent"
	"communitybot/pkg/agent/middleware/metrics"
	"communitybot/pkg/config"
	"communitybot/pkg/discord"
	"communitybot/pkg/healthserver"
	"communitybot/pkg/logx"
	"communitybot/pkg/persistence"
	"communitybot/pkg/sources"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "communitybot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logx.NewLogger("communitybot")
	logger.Info("starting with backend %s", cfg.BackendMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := persistence.Initialize(cfg.DatabasePath); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Error("database close failed: %v", err)
		}
	}()
	store := persistence.Ops()

	recorder := metrics.NewPrometheusRecorder()
	ag, err := agent.New(ctx, cfg, recorder)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	logger.Info("agent ready, model %s", ag.ModelName())

	if cfg.HealthAddr != "" {
		healthserver.New(cfg.HealthAddr, cfg.BackendMode, ag).Start(ctx)
	}

	scheduler, err := startSources(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	bot := discord.NewBot(session, ag, cfg, store)
	bot.Attach(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("discord close failed: %v", err)
		}
	}()
	logger.Info("watching channel %s", cfg.DiscordChannelID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal %v, shutting down", sig)
	cancel()
	return nil
}

// startSources wires the source agent scheduler when an agents config
// file and an S3 bucket are configured. Returns nil when the subsystem
// is disabled.
func startSources(ctx context.Context, cfg *config.Settings, store *persistence.Store, logger *logx.Logger) (*sources.Scheduler, error) {
	if cfg.SourcesConfigPath == "" || cfg.S3Bucket == "" {
		return nil, nil
	}

	registry := sources.NewRegistry()
	count, err := sources.LoadAgents(cfg.SourcesConfigPath, registry)
	if err != nil {
		return nil, fmt.Errorf("load source agents: %w", err)
	}
	if count == 0 {
		logger.Info("no source agents configured")
		return nil, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("aws configuration for source agents: %w", err)
	}
	uploader := sources.NewUploader(s3.NewFromConfig(awsCfg), cfg.S3Bucket)

	scheduler := sources.NewScheduler(registry, uploader, store)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start source scheduler: %w", err)
	}
	logger.Info("source scheduler running with %d agents", count)
	return scheduler, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
