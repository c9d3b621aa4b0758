package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
	"instalytics/internal/service"
)

type analyzeOptions struct {
	refresh bool
	asJSON  bool
	userID  string
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	aopts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:     "analyze <username>",
		Short:   "Analyze one Instagram profile",
		Example: "  instalytics analyze natgeo\n  instalytics analyze @natgeo --refresh --json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err = cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := a.Close(); closeErr != nil {
					log.Warn("Failed to close connections", logger.Error(closeErr))
				}
			}()

			result, err := a.analyzer.Analyze(ctx, service.AnalyzeRequest{
				Username: args[0],
				UserID:   aopts.userID,
				Refresh:  aopts.refresh,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", domain.UserMessage(err), err)
			}

			if aopts.asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&aopts.refresh, "refresh", false, "ignore cached analyses and scrape again")
	cmd.Flags().BoolVar(&aopts.asJSON, "json", false, "print the full analysis as JSON")
	cmd.Flags().StringVar(&aopts.userID, "user", "", "user id recorded in the search history")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, r *domain.AnalysisResult) {
	m := r.EngagementMetrics

	fmt.Fprintln(w, "=== Profile Summary ===")
	fmt.Fprintf(w, "Username:          @%s\n", r.Profile.Username)
	if r.Profile.FullName != "" {
		fmt.Fprintf(w, "Name:              %s\n", r.Profile.FullName)
	}
	fmt.Fprintf(w, "Followers:         %d\n", r.Profile.FollowersCount)
	fmt.Fprintf(w, "Following:         %d\n", r.Profile.FollowingCount)
	fmt.Fprintf(w, "Posts:             %d\n", r.Profile.PostsCount)
	fmt.Fprintf(w, "Verified:          %t\n", r.Profile.IsVerified)
	fmt.Fprintf(w, "Private:           %t\n", r.Profile.IsPrivate)

	fmt.Fprintln(w, "\n=== Engagement ===")
	fmt.Fprintf(w, "Analyzed posts:    %d\n", len(r.Posts))
	fmt.Fprintf(w, "Engagement rate:   %.2f%%\n", m.EngagementRate)
	fmt.Fprintf(w, "Average likes:     %d\n", m.AverageLikes)
	fmt.Fprintf(w, "Average comments:  %d\n", m.AverageComments)
	fmt.Fprintf(w, "Posts per 30 days: %.1f\n", m.PostingFrequency)
	if best := m.BestPerformingPost; best != nil {
		fmt.Fprintf(w, "Best post:         %s (%d likes, %d comments)\n", best.URL, best.LikesCount, best.CommentsCount)
	}
	fmt.Fprintf(w, "Analyzed at:       %s\n", r.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
}
