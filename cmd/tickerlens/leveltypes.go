package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/leveltype"
)

var levelTypesCmd = &cobra.Command{
	Use:   "leveltypes",
	Short: "Inspect and correct the adaptive level type classifier",
}

var levelTypesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print classifier statistics",
	RunE:  runLevelTypeStats,
}

var levelTypesReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List recent classifications in a confidence band",
	Long: `List the most recent level type classifications whose confidence falls
inside the given band, newest first. Use this to find weak classifications
worth correcting with "leveltypes correct".`,
	RunE: runLevelTypeReview,
}

var levelTypesCorrectCmd = &cobra.Command{
	Use:   "correct <history-id> <type>",
	Short: "Correct a past classification",
	Long: `Record the correct type for a past classification. The correction updates
the history entry and reinforces the learned pattern so future occurrences
of the same raw type normalize correctly.`,
	Args: cobra.ExactArgs(2),
	RunE: runLevelTypeCorrect,
}

func init() {
	levelTypesReviewCmd.Flags().Int("limit", 20, "maximum entries to list")
	levelTypesReviewCmd.Flags().Float64("min-confidence", 0, "lower confidence bound")
	levelTypesReviewCmd.Flags().Float64("max-confidence", 0.7, "upper confidence bound")

	levelTypesCmd.AddCommand(levelTypesStatsCmd)
	levelTypesCmd.AddCommand(levelTypesReviewCmd)
	levelTypesCmd.AddCommand(levelTypesCorrectCmd)
	rootCmd.AddCommand(levelTypesCmd)
}

// openClassifier opens the learning database named in the config file.
func openClassifier() (*leveltype.Classifier, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.LevelTypeDB == "" {
		return nil, fmt.Errorf("storage.level_type_db is not configured in %s", configPath)
	}
	return leveltype.New(cfg.Storage.LevelTypeDB)
}

func runLevelTypeStats(cmd *cobra.Command, _ []string) error {
	classifier, err := openClassifier()
	if err != nil {
		return err
	}
	defer classifier.Close()

	stats, err := classifier.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total normalizations: %s\n", humanize.Comma(int64(stats.TotalNormalizations)))
	fmt.Fprintf(out, "Learned patterns:     %s\n", humanize.Comma(int64(stats.LearnedPatterns)))
	fmt.Fprintf(out, "Low confidence:       %s\n\n", humanize.Comma(int64(stats.LowConfidenceCount)))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tCOUNT\tAVG CONFIDENCE")
	for _, method := range []leveltype.Method{
		leveltype.MethodExact, leveltype.MethodPattern,
		leveltype.MethodContext, leveltype.MethodDefault,
	} {
		count, ok := stats.ByMethod[method]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.2f\n", method, count, stats.AvgConfidenceByMethod[method])
	}
	return w.Flush()
}

func runLevelTypeReview(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	minConf, err := cmd.Flags().GetFloat64("min-confidence")
	if err != nil {
		return err
	}
	maxConf, err := cmd.Flags().GetFloat64("max-confidence")
	if err != nil {
		return err
	}

	classifier, err := openClassifier()
	if err != nil {
		return err
	}
	defer classifier.Close()

	entries, err := classifier.Review(cmd.Context(), limit, minConf, maxConf)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No classifications in that confidence band.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORIGINAL\tNORMALIZED\tCONF\tMETHOD\tVIDEO\tWHEN")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			e.ID, e.OriginalType, e.NormalizedType, e.Confidence,
			e.Method, e.VideoID, humanize.Time(e.Timestamp))
	}
	return w.Flush()
}

func runLevelTypeCorrect(cmd *cobra.Command, args []string) error {
	historyID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid history ID %q: %w", args[0], err)
	}
	correctType := args[1]

	classifier, err := openClassifier()
	if err != nil {
		return err
	}
	defer classifier.Close()

	if err := classifier.Correct(cmd.Context(), historyID, correctType); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Corrected entry %d to %q.\n", historyID, correctType)
	return nil
}
