// Command botctl is the operations CLI for the community bot: it runs
// source agents on demand, triggers knowledge base syncs, queries LLM
// usage metrics, and bootstraps a .env file.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"communitybot/pkg/config"
	"communitybot/pkg/metrics"
	"communitybot/pkg/persistence"
	"communitybot/pkg/sources"
	"communitybot/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "botctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "botctl",
		Short:         "Operations CLI for the Discord community bot",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSourcesCmd(), newStatsCmd(), newInitCmd())
	return root
}

// loadSettings reads .env (if present) and the environment without the
// bot's full validation; each command checks the keys it needs.
func loadSettings() *config.Settings {
	return config.FromEnv()
}

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage source agents and knowledge base ingestion",
	}
	cmd.AddCommand(newSourcesListCmd(), newSourcesRunCmd(), newSourcesSyncCmd(), newSourcesHistoryCmd())
	return cmd
}

func loadRegistry(cfg *config.Settings) (*sources.Registry, error) {
	if cfg.SourcesConfigPath == "" {
		return nil, fmt.Errorf("SOURCE_AGENTS_CONFIG is not set")
	}
	registry := sources.NewRegistry()
	if _, err := sources.LoadAgents(cfg.SourcesConfigPath, registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured source agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadSettings()
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSCHEDULE")
			for _, info := range registry.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.ID, info.Type, info.Schedule)
			}
			return w.Flush()
		},
	}
}

func newSourcesRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [agent-id]",
		Short: "Run one source agent, or all of them, once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadSettings()
			if cfg.S3Bucket == "" {
				return fmt.Errorf("KB_S3_BUCKET is not set")
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				return fmt.Errorf("aws configuration: %w", err)
			}
			uploader := sources.NewUploader(s3.NewFromConfig(awsCfg), cfg.S3Bucket)

			var recorder sources.RunRecorder
			if err := persistence.Initialize(cfg.DatabasePath); err == nil {
				defer persistence.Close()
				recorder = persistence.Ops()
			}
			scheduler := sources.NewScheduler(registry, uploader, recorder)

			var results []sources.RunResult
			if len(args) == 1 {
				result, err := scheduler.RunAgent(ctx, args[0])
				if err != nil {
					return err
				}
				results = append(results, result)
			} else {
				results = scheduler.RunAll(ctx)
			}

			for _, result := range results {
				status := "ok"
				if !result.Success {
					status = "FAILED: " + result.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d collected, %d uploaded in %s (%s)\n",
					result.AgentID, result.Documents, result.Uploaded, result.Duration.Round(time.Millisecond), status)
			}
			return nil
		},
	}
}

func newSourcesSyncCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a knowledge base ingestion job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadSettings()
			if cfg.KnowledgeBaseID == "" || cfg.KBDataSourceID == "" {
				return fmt.Errorf("KNOWLEDGE_BASE_ID and KB_DATA_SOURCE_ID must be set")
			}

			ctx := cmd.Context()
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				return fmt.Errorf("aws configuration: %w", err)
			}
			syncer := sources.NewSyncer(bedrockagent.NewFromConfig(awsCfg), cfg.KnowledgeBaseID, cfg.KBDataSourceID)

			jobID, err := syncer.StartSync(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started ingestion job %s\n", jobID)

			if !wait {
				return nil
			}
			for {
				status, err := syncer.GetSyncStatus(ctx, jobID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "status: %s (scanned %d, indexed %d, failed %d)\n",
					status.Status, status.Scanned, status.Indexed, status.Failed)
				switch status.Status {
				case "COMPLETE", "FAILED", "STOPPED":
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(10 * time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	return cmd
}

func newSourcesHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [agent-id]",
		Short: "Show recent source agent runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadSettings()
			if err := persistence.Initialize(cfg.DatabasePath); err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer persistence.Close()

			agentName := ""
			if len(args) == 1 {
				agentName = args[0]
			}
			runs, err := persistence.Ops().RecentSourceRuns(cmd.Context(), agentName, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tSTATUS\tDOCS\tUPLOADED\tSTARTED\tERROR")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					run.AgentName, run.Status, run.Documents, run.Uploaded,
					run.StartedAt.Format(time.RFC3339), run.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var byModel bool
	cmd := &cobra.Command{
		Use:   "stats <backend>",
		Short: "Query aggregated LLM usage from Prometheus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadSettings()
			service, err := metrics.NewQueryService(cfg.PrometheusURL)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var payload any
			if byModel {
				payload, err = service.GetBackendMetricsByModel(ctx, args[0])
			} else {
				payload, err = service.GetBackendMetrics(ctx, args[0])
			}
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(payload)
		},
	}
	cmd.Flags().BoolVar(&byModel, "by-model", false, "break metrics down per model")
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively create a .env file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(".env"); err == nil {
				return fmt.Errorf(".env already exists, refusing to overwrite")
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			ask := func(prompt, fallback string) (string, error) {
				if fallback != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: ", prompt, fallback)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ", prompt)
				}
				line, err := reader.ReadString('\n')
				if err != nil {
					return "", err
				}
				line = strings.TrimSpace(line)
				if line == "" {
					return fallback, nil
				}
				return line, nil
			}

			fmt.Fprint(cmd.OutOrStdout(), "Discord bot token (input hidden): ")
			tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}

			channelID, err := ask("Discord channel ID", "")
			if err != nil {
				return err
			}
			backend, err := ask("Backend mode (ollama | bedrock-nova | bedrock-claude | openai)", config.BackendOllama)
			if err != nil {
				return err
			}
			region, err := ask("AWS region", "us-east-1")
			if err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "DISCORD_BOT_TOKEN=%s\n", strings.TrimSpace(string(tokenBytes)))
			fmt.Fprintf(&b, "DISCORD_CHANNEL_ID=%s\n", channelID)
			fmt.Fprintf(&b, "BACKEND_MODE=%s\n", backend)
			fmt.Fprintf(&b, "AWS_REGION=%s\n", region)

			if err := os.WriteFile(".env", []byte(b.String()), 0o600); err != nil {
				return fmt.Errorf("write .env: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote .env")
			return nil
		},
	}
}
