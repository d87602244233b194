package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/pipeline"
	"github.com/mikeboe/deep-research/pkg/research"
)

var (
	query     string
	breadth   int
	depth     int
	mode      string
	outputDir string
	questions int
)

func main() {
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research researches a topic recursively: it searches the web for generated queries, distils learnings and follows up on them, then writes a report or a concise answer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return run(ctx, cmd, cfg)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "The research topic (prompted for when empty)")
	rootCmd.Flags().IntVarP(&breadth, "breadth", "b", cfg.DefaultBreadth, "Sub-queries per level")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", cfg.DefaultDepth, "Recursion depth")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "report", "Output mode: report or answer")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory the result is written to")
	rootCmd.Flags().IntVar(&questions, "questions", 3, "Clarifying questions asked before researching (0 disables)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	if !cmd.Flags().Changed("query") {
		fmt.Print("What would you like to research? ")
		input, _ := reader.ReadString('\n')
		query = strings.TrimSpace(input)
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query cannot be empty")
	}

	m, err := pipeline.ParseMode(mode)
	if err != nil {
		return err
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}

	if questions > 0 {
		query = clarify(ctx, p, reader, query)
	}

	slog.Info("Starting research", "breadth", breadth, "depth", depth, "mode", m)
	out, err := p.Run(ctx, pipeline.Request{Query: query, Breadth: breadth, Depth: depth, Mode: m}, logProgress)
	if err != nil {
		return err
	}
	if out.Degraded {
		slog.Warn("Synthesis failed, writing sources only")
	}

	name := "report.md"
	if m == pipeline.ModeAnswer {
		name = "answer.md"
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(out.Report), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	slog.Info("Research complete", "learnings", len(out.Result.Learnings), "urls", len(out.Result.VisitedURLs), "output", path)
	if m == pipeline.ModeAnswer {
		fmt.Printf("\nAnswer: %s\n", out.Answer)
	}
	return nil
}

// clarify asks the model for follow-up questions, reads the answers from
// stdin and folds them into the query.
func clarify(ctx context.Context, p *pipeline.Pipeline, reader *bufio.Reader, q string) string {
	qs, err := p.Feedback().GenerateQuestions(ctx, q, questions)
	if err != nil {
		slog.Warn("Could not generate follow-up questions", "error", err)
		return q
	}
	if len(qs) == 0 {
		return q
	}

	fmt.Println("\nTo better understand your research needs, please answer these follow-up questions:")
	answers := make([]string, len(qs))
	for i, question := range qs {
		fmt.Printf("\n%s\nYour answer: ", question)
		input, _ := reader.ReadString('\n')
		answers[i] = strings.TrimSpace(input)
	}
	return research.CombineQuery(q, qs, answers)
}

func logProgress(p research.ResearchProgress) {
	slog.Info("Progress",
		"depth", fmt.Sprintf("%d/%d", p.CurrentDepth, p.TotalDepth),
		"breadth", fmt.Sprintf("%d/%d", p.CurrentBreadth, p.TotalBreadth),
		"queries", fmt.Sprintf("%d/%d", p.CompletedQueries, p.TotalQueries),
		"current", p.CurrentQuery,
	)
}
