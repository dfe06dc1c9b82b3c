package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lime/internal/model/pipeline"
	"lime/internal/server"
)

var topicsFile string

var runCmd = &cobra.Command{
	Use:   "run [topics...]",
	Short: "Produce a batch of videos and wait for completion",
	Long: `Run a one-shot production batch. Topics come from arguments or from
a file (one topic per line). The command blocks until every item reaches
a terminal stage, then prints a per-item report.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&topicsFile, "topics-file", "f", "",
		"file with one topic per line")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	topics, err := collectTopics(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := server.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer p.Close()

	batchID, err := p.Service.SubmitBatch(ctx, topics)
	if err != nil {
		return err
	}
	log.Info().Str("batch_id", batchID).Int("total", len(topics)).Msg("batch submitted")

	// Ctrl-C 取消批次而不是直接退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("cancelling batch")
		if err := p.Service.CancelBatch(context.Background(), batchID); err != nil {
			log.Error().Err(err).Msg("failed to cancel batch")
		}
	}()

	if err := p.Service.WaitBatch(ctx, batchID); err != nil {
		return err
	}

	batch, items, err := p.Service.BatchReport(ctx, batchID)
	if err != nil {
		return err
	}
	printReport(batch, items)
	return nil
}

func collectTopics(args []string) ([]string, error) {
	topics := append([]string(nil), args...)

	if topicsFile != "" {
		f, err := os.Open(topicsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open topics file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				topics = append(topics, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read topics file: %w", err)
		}
	}

	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics given: pass them as arguments or via --topics-file")
	}
	return topics, nil
}

func printReport(batch *pipeline.Batch, items []*pipeline.ContentItem) {
	fmt.Printf("\nbatch %s  status=%s  total=%d\n\n", batch.ID, batch.Status, batch.Total)
	for _, item := range items {
		switch item.Stage {
		case pipeline.StageDone:
			fmt.Printf("  [done]   %-24s %s\n", item.Topic, item.PublishedURL)
		case pipeline.StageFailed:
			fmt.Printf("  [failed] %-24s %s: %s\n", item.Topic, item.FailureKind, item.FailureReason)
		default:
			fmt.Printf("  [%s] %-24s\n", item.Stage, item.Topic)
		}
	}
}
