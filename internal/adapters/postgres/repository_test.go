package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instalytics/internal/adapters/postgres"
	"instalytics/internal/core/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockRepository(t *testing.T, freshness time.Duration) (*postgres.Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	repo := postgres.NewRepository(sqlx.NewDb(db, "postgres"), freshness)
	repo.Now = func() time.Time { return fixedNow }
	return repo, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

var analysisColumns = []string{
	"id", "username", "full_name", "biography", "followers_count", "following_count",
	"posts_count", "profile_pic_url", "is_private", "is_verified",
	"engagement_rate", "average_likes", "average_comments", "posting_frequency",
	"best_performing_post_id", "analyzed_at",
}

var postColumns = []string{
	"post_id", "caption", "likes_count", "comments_count", "timestamp", "url", "media_type",
	"media_url", "location_name",
}

func TestRepository_Lookup(t *testing.T) {
	repo, mock := newMockRepository(t, 24*time.Hour)
	analyzedAt := fixedNow.Add(-2 * time.Hour)
	postedAt := fixedNow.Add(-48 * time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM profiles p JOIN engagement_metrics m").
		WithArgs("natgeo", fixedNow.Add(-24*time.Hour)).
		WillReturnRows(sqlmock.NewRows(analysisColumns).AddRow(
			int64(7), "natgeo", "National Geographic", "bio", int64(1000), int64(10),
			int64(2), "https://pic", false, true,
			5.5, int64(50), int64(5), 3.25,
			"p2", analyzedAt,
		))
	mock.ExpectQuery("SELECT (.+) FROM posts WHERE profile_id = \\$1 ORDER BY position ASC").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(postColumns).
			AddRow("p1", "first", int64(10), int64(1), postedAt, "u1", "image", "m1", nil).
			AddRow("p2", "second", int64(90), int64(9), postedAt, "u2", "video", "m2", "Paris"))

	result, err := repo.Lookup(context.Background(), "natgeo")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "natgeo", result.Profile.Username)
	assert.Equal(t, int64(1000), result.Profile.FollowersCount)
	assert.True(t, result.Profile.IsVerified)
	assert.Equal(t, analyzedAt, result.Timestamp)
	assert.InDelta(t, 5.5, result.EngagementMetrics.EngagementRate, 1e-9)

	require.Len(t, result.Posts, 2)
	assert.Nil(t, result.Posts[0].LocationName)
	require.NotNil(t, result.Posts[1].LocationName)
	assert.Equal(t, "Paris", *result.Posts[1].LocationName)

	require.NotNil(t, result.EngagementMetrics.BestPerformingPost)
	assert.Equal(t, "p2", result.EngagementMetrics.BestPerformingPost.ID)
	assert.Equal(t, int64(90), result.EngagementMetrics.BestPerformingPost.LikesCount)

	expectationsMet(t, mock)
}

func TestRepository_LookupMiss(t *testing.T) {
	repo, mock := newMockRepository(t, 24*time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM profiles").WillReturnError(sql.ErrNoRows)

	result, err := repo.Lookup(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Nil(t, result)

	expectationsMet(t, mock)
}

func TestRepository_LookupError(t *testing.T) {
	repo, mock := newMockRepository(t, 24*time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM profiles").WillReturnError(sql.ErrConnDone)

	_, err := repo.Lookup(context.Background(), "natgeo")
	require.ErrorIs(t, err, sql.ErrConnDone)

	expectationsMet(t, mock)
}

func TestRepository_LookupDisabled(t *testing.T) {
	repo, mock := newMockRepository(t, 0)

	result, err := repo.Lookup(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Nil(t, result)

	expectationsMet(t, mock)
}

func sampleResult() *domain.AnalysisResult {
	location := "Paris"
	posts := []domain.Post{
		{ID: "p1", LikesCount: 10, CommentsCount: 1, Timestamp: fixedNow, MediaType: "image"},
		{ID: "p2", LikesCount: 90, CommentsCount: 9, Timestamp: fixedNow, MediaType: "video", LocationName: &location},
	}
	return &domain.AnalysisResult{
		Profile: domain.Profile{Username: "natgeo", FollowersCount: 1000},
		Posts:   posts,
		EngagementMetrics: domain.EngagementMetrics{
			EngagementRate:     5.5,
			AverageLikes:       50,
			AverageComments:    5,
			BestPerformingPost: &posts[1],
		},
		Timestamp: fixedNow,
	}
}

func TestRepository_Store(t *testing.T) {
	repo, mock := newMockRepository(t, 24*time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO profiles").
		WithArgs("natgeo", "", "", int64(1000), int64(0), int64(0), "", false, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO posts").
		WithArgs("p1", int64(7), 0, "", int64(10), int64(1), fixedNow, "", "image", "", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO posts").
		WithArgs("p2", int64(7), 1, "", int64(90), int64(9), fixedNow, "", "video", "", "Paris").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM posts WHERE profile_id = \\$1").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO engagement_metrics").
		WithArgs(int64(7), 5.5, int64(50), int64(5), 0.0, "p2", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Store(context.Background(), sampleResult()))

	expectationsMet(t, mock)
}

func TestRepository_StoreRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t, 24*time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO profiles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO posts").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Store(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert post p1")

	expectationsMet(t, mock)
}

func TestRepository_StoreNil(t *testing.T) {
	repo, mock := newMockRepository(t, 24*time.Hour)

	require.Error(t, repo.Store(context.Background(), nil))

	expectationsMet(t, mock)
}
