package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hesiod-au/mentat/internal/feature"
)

var (
	searchMaxResults int
	searchLevel      string
	searchSimilarity bool
)

// searchCmd ranks repository features against a query
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank repository features by similarity to a query",
	Long: `Scores every candidate feature against the query with the configured
embedding backend and prints them best first, with the token cost of
including each hit. Pinned paths get no special treatment here; this is a
pure relevance view.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchMaxResults, "max-results", "n", 10, "Result cap (0 for all)")
	searchCmd.Flags().StringVar(&searchLevel, "level", "interval", "Detail level to score at (file_name, cmap, cmap_full, interval, code)")
	searchCmd.Flags().BoolVar(&searchSimilarity, "similarity", true, "Rank candidates by embedding similarity")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg.Context.UseSimilarity = searchSimilarity
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := feature.ParseLevel(searchLevel)
	if err != nil {
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

	results, err := sess.engine.Search(ctx, strings.Join(args, " "), searchMaxResults, level)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "no results")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%6.3f  %6s  %s\n", r.Score, hitTokens(ctx, sess, r.Feature), r.Feature.Ref())
	}
	return nil
}

// hitTokens counts what including one search hit would cost against the
// configured model. Rows print "-" when the hit cannot be sized.
func hitTokens(ctx context.Context, sess *session, f feature.Feature) string {
	text, err := sess.renderer.Feature(ctx, f)
	if err != nil {
		return "-"
	}
	n, err := sess.counter.Count(ctx, text, cfg.Model)
	if err != nil {
		return "-"
	}
	return strconv.Itoa(n)
}
