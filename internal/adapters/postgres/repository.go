package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"instalytics/internal/core/domain"
)

// Repository persists analyses and search history.
type Repository struct {
	db        *sqlx.DB
	freshness time.Duration

	// Now is the clock used for the freshness cutoff.
	Now func() time.Time
}

// NewRepository creates a new repository. Analyses older than freshness are not returned
// by Lookup; a non-positive freshness disables reuse entirely.
func NewRepository(db *sqlx.DB, freshness time.Duration) *Repository {
	return &Repository{db: db, freshness: freshness, Now: time.Now}
}

type analysisRow struct {
	ProfileID        int64          `db:"id"`
	Username         string         `db:"username"`
	FullName         string         `db:"full_name"`
	Biography        string         `db:"biography"`
	FollowersCount   int64          `db:"followers_count"`
	FollowingCount   int64          `db:"following_count"`
	PostsCount       int64          `db:"posts_count"`
	ProfilePicURL    string         `db:"profile_pic_url"`
	IsPrivate        bool           `db:"is_private"`
	IsVerified       bool           `db:"is_verified"`
	EngagementRate   float64        `db:"engagement_rate"`
	AverageLikes     int64          `db:"average_likes"`
	AverageComments  int64          `db:"average_comments"`
	PostingFrequency float64        `db:"posting_frequency"`
	BestPostID       sql.NullString `db:"best_performing_post_id"`
	AnalyzedAt       time.Time      `db:"analyzed_at"`
}

type postRow struct {
	PostID        string         `db:"post_id"`
	Caption       string         `db:"caption"`
	LikesCount    int64          `db:"likes_count"`
	CommentsCount int64          `db:"comments_count"`
	Timestamp     time.Time      `db:"timestamp"`
	URL           string         `db:"url"`
	MediaType     string         `db:"media_type"`
	MediaURL      string         `db:"media_url"`
	LocationName  sql.NullString `db:"location_name"`
}

func (p postRow) post() domain.Post {
	post := domain.Post{
		ID:            p.PostID,
		Caption:       p.Caption,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		Timestamp:     p.Timestamp.UTC(),
		URL:           p.URL,
		MediaType:     p.MediaType,
		MediaURL:      p.MediaURL,
	}
	if p.LocationName.Valid {
		name := p.LocationName.String
		post.LocationName = &name
	}
	return post
}

// Lookup returns the stored analysis of username if it was made within the freshness window.
// A miss returns nil and no error.
func (r *Repository) Lookup(ctx context.Context, username string) (*domain.AnalysisResult, error) {
	if r.freshness <= 0 {
		return nil, nil
	}

	var row analysisRow
	query := `
		SELECT p.id, p.username, p.full_name, p.biography, p.followers_count, p.following_count,
		       p.posts_count, p.profile_pic_url, p.is_private, p.is_verified,
		       m.engagement_rate, m.average_likes, m.average_comments, m.posting_frequency,
		       m.best_performing_post_id, m.analyzed_at
		FROM profiles p
		JOIN engagement_metrics m ON m.profile_id = p.id
		WHERE p.username = $1 AND m.analyzed_at > $2
	`

	err := r.db.GetContext(ctx, &row, query, username, r.Now().Add(-r.freshness))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up analysis: %w", err)
	}

	var rows []postRow
	postsQuery := `
		SELECT post_id, caption, likes_count, comments_count, timestamp, url, media_type,
		       media_url, location_name
		FROM posts
		WHERE profile_id = $1
		ORDER BY position ASC
	`
	if err := r.db.SelectContext(ctx, &rows, postsQuery, row.ProfileID); err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}

	result := &domain.AnalysisResult{
		Profile: domain.Profile{
			Username:       row.Username,
			FullName:       row.FullName,
			Biography:      row.Biography,
			FollowersCount: row.FollowersCount,
			FollowingCount: row.FollowingCount,
			PostsCount:     row.PostsCount,
			ProfilePicURL:  row.ProfilePicURL,
			IsPrivate:      row.IsPrivate,
			IsVerified:     row.IsVerified,
		},
		Posts: make([]domain.Post, 0, len(rows)),
		EngagementMetrics: domain.EngagementMetrics{
			EngagementRate:   row.EngagementRate,
			PostingFrequency: row.PostingFrequency,
			AverageLikes:     row.AverageLikes,
			AverageComments:  row.AverageComments,
		},
		Timestamp: row.AnalyzedAt.UTC(),
	}
	for _, pr := range rows {
		post := pr.post()
		result.Posts = append(result.Posts, post)
		if row.BestPostID.Valid && post.ID == row.BestPostID.String && result.EngagementMetrics.BestPerformingPost == nil {
			best := post
			result.EngagementMetrics.BestPerformingPost = &best
		}
	}

	return result, nil
}

// Store upserts the profile, its posts and metrics in one transaction. Posts of the
// profile that are not part of result are removed so a later Lookup sees exactly result.
func (r *Repository) Store(ctx context.Context, result *domain.AnalysisResult) error {
	if result == nil {
		return errors.New("nil analysis result")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	profileID, err := upsertProfile(ctx, tx, result.Profile)
	if err != nil {
		return err
	}

	postIDs := make([]string, 0, len(result.Posts))
	for i, post := range result.Posts {
		if post.ID == "" {
			continue
		}
		if err := upsertPost(ctx, tx, profileID, i, post); err != nil {
			return err
		}
		postIDs = append(postIDs, post.ID)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM posts WHERE profile_id = $1 AND NOT (post_id = ANY($2))`,
		profileID, pq.Array(postIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to remove stale posts: %w", err)
	}

	if err := upsertMetrics(ctx, tx, profileID, result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	return nil
}

func upsertProfile(ctx context.Context, tx *sqlx.Tx, p domain.Profile) (int64, error) {
	query := `
		INSERT INTO profiles (username, full_name, biography, followers_count, following_count,
		                      posts_count, profile_pic_url, is_private, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (username) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			biography = EXCLUDED.biography,
			followers_count = EXCLUDED.followers_count,
			following_count = EXCLUDED.following_count,
			posts_count = EXCLUDED.posts_count,
			profile_pic_url = EXCLUDED.profile_pic_url,
			is_private = EXCLUDED.is_private,
			is_verified = EXCLUDED.is_verified,
			updated_at = NOW()
		RETURNING id
	`

	var id int64
	err := tx.QueryRowxContext(ctx, query,
		p.Username, p.FullName, p.Biography, p.FollowersCount, p.FollowingCount,
		p.PostsCount, p.ProfilePicURL, p.IsPrivate, p.IsVerified,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return id, nil
}

func upsertPost(ctx context.Context, tx *sqlx.Tx, profileID int64, position int, p domain.Post) error {
	query := `
		INSERT INTO posts (post_id, profile_id, position, caption, likes_count, comments_count,
		                   timestamp, url, media_type, media_url, location_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (post_id) DO UPDATE SET
			profile_id = EXCLUDED.profile_id,
			position = EXCLUDED.position,
			caption = EXCLUDED.caption,
			likes_count = EXCLUDED.likes_count,
			comments_count = EXCLUDED.comments_count,
			timestamp = EXCLUDED.timestamp,
			url = EXCLUDED.url,
			media_type = EXCLUDED.media_type,
			media_url = EXCLUDED.media_url,
			location_name = EXCLUDED.location_name,
			updated_at = NOW()
	`

	var location sql.NullString
	if p.LocationName != nil {
		location = sql.NullString{String: *p.LocationName, Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		p.ID, profileID, position, p.Caption, p.LikesCount, p.CommentsCount,
		p.Timestamp, p.URL, p.MediaType, p.MediaURL, location,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", p.ID, err)
	}
	return nil
}

func upsertMetrics(ctx context.Context, tx *sqlx.Tx, profileID int64, result *domain.AnalysisResult) error {
	query := `
		INSERT INTO engagement_metrics (profile_id, engagement_rate, average_likes, average_comments,
		                                posting_frequency, best_performing_post_id, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (profile_id) DO UPDATE SET
			engagement_rate = EXCLUDED.engagement_rate,
			average_likes = EXCLUDED.average_likes,
			average_comments = EXCLUDED.average_comments,
			posting_frequency = EXCLUDED.posting_frequency,
			best_performing_post_id = EXCLUDED.best_performing_post_id,
			analyzed_at = EXCLUDED.analyzed_at,
			updated_at = NOW()
	`

	m := result.EngagementMetrics
	var best sql.NullString
	if m.BestPerformingPost != nil && m.BestPerformingPost.ID != "" {
		best = sql.NullString{String: m.BestPerformingPost.ID, Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		profileID, m.EngagementRate, m.AverageLikes, m.AverageComments,
		m.PostingFrequency, best, result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert engagement metrics: %w", err)
	}
	return nil
}
