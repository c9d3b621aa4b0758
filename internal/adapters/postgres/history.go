package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"instalytics/internal/core/domain"
)

var historyOrderColumns = map[domain.HistoryOrder]string{
	domain.OrderByTimestamp: "timestamp",
	domain.OrderByUsername:  "username",
}

type historyRow struct {
	domain.SearchHistoryEntry
	RawResult []byte `db:"result"`
}

// AppendHistory records one analysis attempt. The result is stored as JSONB.
func (r *Repository) AppendHistory(ctx context.Context, entry domain.SearchHistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.Now().UTC()
	}

	// lib/pq sends []byte as bytea, so JSONB goes over the wire as text.
	var result any
	if entry.Result != nil {
		raw, err := json.Marshal(entry.Result)
		if err != nil {
			return fmt.Errorf("failed to encode history result: %w", err)
		}
		result = string(raw)
	}

	query := `
		INSERT INTO search_history (id, user_id, username, timestamp, status, result, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Username, entry.Timestamp,
		string(entry.Status), result, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to append search history: %w", err)
	}
	return nil
}

// QueryHistory returns one page of history matching filters, plus the total match count.
func (r *Repository) QueryHistory(ctx context.Context, filters domain.HistoryFilters) (domain.HistoryPage, error) {
	if err := filters.Normalize(); err != nil {
		return domain.HistoryPage{}, err
	}

	where, args := historyWhere(filters)

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM search_history"+where, args...); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("failed to count search history: %w", err)
	}

	direction := "DESC"
	if filters.OrderDirection == domain.SortAsc {
		direction = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, user_id, username, timestamp, status, result, error_message
		FROM search_history%s
		ORDER BY %s %s, id %s
		LIMIT $%d OFFSET $%d
	`, where, historyOrderColumns[filters.OrderBy], direction, direction, len(args)+1, len(args)+2)
	args = append(args, filters.Limit, filters.Offset())

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("failed to query search history: %w", err)
	}

	page := domain.HistoryPage{Entries: make([]domain.SearchHistoryEntry, 0, len(rows)), Total: total}
	for _, row := range rows {
		entry := row.SearchHistoryEntry
		entry.Timestamp = entry.Timestamp.UTC()
		if len(row.RawResult) > 0 {
			var result domain.AnalysisResult
			if err := json.Unmarshal(row.RawResult, &result); err != nil {
				return domain.HistoryPage{}, fmt.Errorf("failed to decode history entry %s: %w", entry.ID, err)
			}
			entry.Result = &result
		}
		page.Entries = append(page.Entries, entry)
	}

	return page, nil
}

// PruneHistory deletes entries recorded before the cutoff and returns how many were removed.
func (r *Repository) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM search_history WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune search history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

func historyWhere(f domain.HistoryFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Username != "" {
		args = append(args, "%"+escapeLike(f.Username)+"%")
		conds = append(conds, fmt.Sprintf("username ILIKE $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
