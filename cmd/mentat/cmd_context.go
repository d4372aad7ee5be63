package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hesiod-au/mentat/internal/feature"
	"github.com/hesiod-au/mentat/internal/watch"
)

var (
	contextModel      string
	contextMaxTokens  int
	contextAutoTokens int
	contextDiff       string
	contextSimilarity bool
	contextLLM        bool
	contextNoMap      bool
	contextInclude    []string
	contextIgnore     []string
	contextHints      []string
	contextWatch      bool
	contextSummary    bool
)

// contextCmd assembles and prints one context message
var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Assemble a context message for a query",
	Long: `Assembles a context message for the repository, sized to the token
budget. The optional query steers similarity ranking and LLM-assisted
selection; without one, candidates keep catalog order.

Examples:
  mentat context "where is the retry logic?"
  mentat context --diff origin/main --max-tokens 8000
  mentat context --include main.go --include "lib/util.go:40-90" --watch`,
	Args: cobra.ArbitraryArgs,
	RunE: runContext,
}

func init() {
	contextCmd.Flags().StringVar(&contextModel, "model", "", "Target model for token accounting")
	contextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 0, "Total message budget in tokens")
	contextCmd.Flags().IntVar(&contextAutoTokens, "auto-tokens", 0, "Auto-selection pool cap (-1 unbounded, 0 disables)")
	contextCmd.Flags().StringVar(&contextDiff, "diff", "", "Annotate changes against this git baseline")
	contextCmd.Flags().BoolVar(&contextSimilarity, "similarity", false, "Rank candidates by embedding similarity")
	contextCmd.Flags().BoolVar(&contextLLM, "llm", false, "Let an LLM choose among ranked candidates")
	contextCmd.Flags().BoolVar(&contextNoMap, "no-map", false, "Disable structural summaries")
	contextCmd.Flags().StringSliceVar(&contextInclude, "include", nil, "Pin a path or path:a-b[,c-d] span")
	contextCmd.Flags().StringSliceVar(&contextIgnore, "ignore", nil, "Hide a path from automatic selection")
	contextCmd.Flags().StringSliceVar(&contextHints, "hint", nil, "Expected edit, passed to LLM-assisted selection")
	contextCmd.Flags().BoolVar(&contextWatch, "watch", false, "Rebuild when files change")
	contextCmd.Flags().BoolVar(&contextSummary, "summary", false, "Print what the context holds instead of the message")
}

// applyContextFlags folds explicitly set flags over the loaded config.
func applyContextFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("model") {
		cfg.Model = contextModel
	}
	if cmd.Flags().Changed("max-tokens") {
		cfg.Context.MaxTokens = contextMaxTokens
	}
	if cmd.Flags().Changed("auto-tokens") {
		cfg.Context.AutoTokens = contextAutoTokens
	}
	if cmd.Flags().Changed("diff") {
		cfg.Context.DiffBaseline = contextDiff
	}
	if cmd.Flags().Changed("similarity") {
		cfg.Context.UseSimilarity = contextSimilarity
	}
	if cmd.Flags().Changed("llm") {
		cfg.Context.UseLLMSelection = contextLLM
	}
	if contextNoMap {
		cfg.Context.StructuralSummaries = false
	}
	cfg.Context.IncludePaths = append(cfg.Context.IncludePaths, contextInclude...)
	cfg.Context.IgnorePaths = append(cfg.Context.IgnorePaths, contextIgnore...)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

func runContext(cmd *cobra.Command, args []string) error {
	applyContextFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	root, err := resolveWorkspace()
	if err != nil {
		return err
	}

	sess, err := newSession(root)
	if err != nil {
		return err
	}
	defer sess.close()

	done := make(chan struct{})
	defer close(done)
	printNotices(sess.bus, done)

	ctx, cancel := signalContext()
	defer cancel()

	query := strings.Join(args, " ")
	message, err := sess.engine.GetContextMessage(ctx, query, cfg.Model, cfg.Context.MaxTokens, contextHints)
	if err != nil {
		return err
	}
	if contextSummary {
		printContextSummary(ctx, sess, message)
		return nil
	}
	fmt.Println(message)

	if !contextWatch {
		return nil
	}
	return watchLoop(ctx, sess, query, message)
}

// printContextSummary describes the assembled context without printing it:
// where it came from, what is pinned, and how the auto pool was spent.
func printContextSummary(ctx context.Context, sess *session, message string) {
	s := sess.engine.Summary()
	fmt.Println("Code Context:")
	fmt.Printf("  Directory: %s\n", s.Root)
	if s.DiffLabel != "" {
		fmt.Printf("  Diff: %s\n", s.DiffLabel)
	}
	if len(s.IncludedPaths) > 0 {
		fmt.Println("  Included files:")
		for _, path := range s.IncludedPaths {
			fmt.Printf("    %s\n", path)
		}
	} else {
		fmt.Println("  Included files: none")
	}
	switch {
	case s.AutoTokens < 0:
		fmt.Println("  Auto-token limit: model max")
	case s.AutoTokens == 0:
		fmt.Println("  Auto-token limit: disabled")
	default:
		fmt.Printf("  Auto-token limit: %d\n", s.AutoTokens)
	}
	fmt.Printf("  Structural summaries: %s\n", onOff(s.StructuralSummaries))
	fmt.Printf("  Similarity ranking: %s\n", onOff(s.UseSimilarity))
	if count, err := sess.counter.Count(ctx, message, cfg.Model); err == nil {
		fmt.Printf("  Tokens: %d / %d\n", count, cfg.Context.MaxTokens)
	}

	total := 0
	for _, n := range s.AutoSelected {
		total += n
	}
	if total == 0 {
		return
	}
	fmt.Println("Auto-selected features:")
	for level := feature.LevelFileName; level <= feature.LevelCode; level++ {
		if n := s.AutoSelected[level]; n > 0 {
			fmt.Printf("  %d at %s\n", n, level)
		}
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// watchLoop reassembles on settled file changes until interrupted. The
// assembly cache keeps unchanged rebuilds cheap; only a message that
// actually differs is printed again.
func watchLoop(ctx context.Context, sess *session, query, last string) error {
	w, err := watch.New(sess.engine.Root(), sess.bus, logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	sub := sess.bus.Subscribe(watch.Channel)
	defer sess.bus.Unsubscribe(sub)

	fmt.Fprintln(os.Stderr, "watching for changes, Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			change, ok := ev.Message.(watch.Change)
			if !ok {
				continue
			}

			message, err := sess.engine.GetContextMessage(ctx, query, cfg.Model, cfg.Context.MaxTokens, contextHints)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintln(os.Stderr, "rebuild failed:", err)
				continue
			}
			if message == last {
				continue
			}
			last = message
			fmt.Fprintf(os.Stderr, "-- %s %s --\n", change.Path, change.Op)
			fmt.Println(message)
		}
	}
}
