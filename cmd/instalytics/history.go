package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"instalytics/internal/adapters/postgres"
	"instalytics/internal/core/domain"
	"instalytics/internal/logger"
)

var errNoDatabase = errors.New("search history requires a database (set database.url or DATABASE_URL)")

type historyOptions struct {
	filters domain.HistoryFilters
	orderBy string
	dir     string
	status  string
	asJSON  bool
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	hopts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past profile analyses",
		Example: "  instalytics history --status error\n" +
			"  instalytics history --username geo --order-by username --direction asc --limit 50",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if !cfg.Database.Enabled() {
				return errNoDatabase
			}

			db, err := openDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					log.Warn("Failed to close database", logger.Error(closeErr))
				}
			}()

			f := hopts.filters
			f.Status = domain.HistoryStatus(hopts.status)
			f.OrderBy = domain.HistoryOrder(hopts.orderBy)
			f.OrderDirection = domain.SortDirection(hopts.dir)
			if err = f.Normalize(); err != nil {
				return err
			}

			page, err := postgres.NewRepository(db, cfg.Cache.Freshness).QueryHistory(cmd.Context(), f)
			if err != nil {
				return err
			}

			if hopts.asJSON {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			renderHistory(cmd.OutOrStdout(), page, f)
			return nil
		},
	}

	cmd.Flags().StringVar(&hopts.filters.Username, "username", "", "only entries whose username contains this text")
	cmd.Flags().StringVar(&hopts.filters.UserID, "user", "", "only entries recorded for this user id")
	cmd.Flags().StringVar(&hopts.status, "status", "", "only entries with this status (success or error)")
	cmd.Flags().IntVar(&hopts.filters.Page, "page", domain.DefaultHistoryPage, "page number")
	cmd.Flags().IntVar(&hopts.filters.Limit, "limit", domain.DefaultHistoryLimit, "entries per page")
	cmd.Flags().StringVar(&hopts.orderBy, "order-by", string(domain.OrderByTimestamp), "sort by timestamp or username")
	cmd.Flags().StringVar(&hopts.dir, "direction", string(domain.SortDesc), "sort direction (asc or desc)")
	cmd.Flags().BoolVar(&hopts.asJSON, "json", false, "print the page as JSON")
	return cmd
}

func renderHistory(w io.Writer, page domain.HistoryPage, f domain.HistoryFilters) {
	if len(page.Entries) == 0 {
		fmt.Fprintln(w, "No search history found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Timestamp", "Username", "Status", "Followers", "Engagement", "Error"})

	for i := range page.Entries {
		e := &page.Entries[i]
		followers, rate := "-", "-"
		if e.Result != nil {
			followers = fmt.Sprintf("%d", e.Result.Profile.FollowersCount)
			rate = fmt.Sprintf("%.2f%%", e.Result.EngagementMetrics.EngagementRate)
		}
		errMsg := ""
		if e.ErrorMessage != nil {
			errMsg = truncate(*e.ErrorMessage, 60)
		}
		t.AppendRow(table.Row{
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			"@" + e.Username,
			string(e.Status),
			followers,
			rate,
			errMsg,
		})
	}
	t.Render()

	pages := (page.Total + f.Limit - 1) / f.Limit
	fmt.Fprintf(w, "\nPage %d of %d (%d entries)\n", f.Page, pages, page.Total)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
