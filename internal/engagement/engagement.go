// Package engagement derives engagement metrics from a profile and its recent posts.
package engagement

import (
	"math"
	"time"

	"instalytics/internal/core/domain"
)

// FrequencyPeriod is the window postingFrequency is expressed in.
const FrequencyPeriod = 30 * 24 * time.Hour

// Compute returns the engagement metrics for profile over posts. It never fails:
// no posts yields zero metrics and no best post.
func Compute(profile domain.Profile, posts []domain.Post) domain.EngagementMetrics {
	if len(posts) == 0 {
		return domain.EngagementMetrics{}
	}

	var totalLikes, totalComments float64
	for _, p := range posts {
		totalLikes += float64(max(p.LikesCount, 0))
		totalComments += float64(max(p.CommentsCount, 0))
	}

	n := float64(len(posts))
	avgLikes := totalLikes / n
	avgComments := totalComments / n

	var rate float64
	if profile.FollowersCount > 0 {
		rate = (avgLikes + avgComments) / float64(profile.FollowersCount) * 100
	}

	return domain.EngagementMetrics{
		EngagementRate:     round2(rate),
		PostingFrequency:   round2(PostingFrequency(posts)),
		AverageLikes:       int64(math.Round(avgLikes)),
		AverageComments:    int64(math.Round(avgComments)),
		BestPerformingPost: BestPost(posts),
	}
}

// PostingFrequency estimates posts per FrequencyPeriod from the timestamp span of posts.
// With fewer than two posts, or no measurable span, the sample size itself is returned.
// Spans shorter than a day count as one day.
func PostingFrequency(posts []domain.Post) float64 {
	n := len(posts)
	if n < 2 {
		return float64(n)
	}

	oldest, newest := posts[0].Timestamp, posts[0].Timestamp
	for _, p := range posts[1:] {
		if p.Timestamp.Before(oldest) {
			oldest = p.Timestamp
		}
		if p.Timestamp.After(newest) {
			newest = p.Timestamp
		}
	}

	span := newest.Sub(oldest)
	if span <= 0 {
		return float64(n)
	}

	days := math.Max(span.Hours()/24, 1)
	periodDays := FrequencyPeriod.Hours() / 24
	return float64(n) / days * periodDays
}

// BestPost returns the post with the most likes plus comments. Ties go to the earliest
// post in input order. It returns nil for no posts.
func BestPost(posts []domain.Post) *domain.Post {
	if len(posts) == 0 {
		return nil
	}

	best := 0
	bestScore := score(posts[0])
	for i := 1; i < len(posts); i++ {
		if s := score(posts[i]); s > bestScore {
			best, bestScore = i, s
		}
	}

	p := posts[best]
	return &p
}

func score(p domain.Post) int64 {
	return max(p.LikesCount, 0) + max(p.CommentsCount, 0)
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return math.Round(v*100) / 100
}
