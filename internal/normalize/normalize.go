// Package normalize reshapes raw scraper dataset items into canonical profiles and posts.
package normalize

import (
	"fmt"
	"time"

	"instalytics/internal/core/domain"
)

// Normalizer converts a job's dataset into a Profile and its Posts.
type Normalizer struct {
	// Now fills missing post timestamps. Defaults to time.Now.
	Now func() time.Time

	ProfileAdapters []ProfileAdapter
	PostAdapters    []PostAdapter
}

// New returns a Normalizer using the built-in adapters.
func New() *Normalizer {
	return &Normalizer{
		Now:             time.Now,
		ProfileAdapters: ProfileAdapters,
		PostAdapters:    PostAdapters,
	}
}

// Normalize locates the profile item and collects its posts.
//
// Posts come from the profile item's embedded list when it is non-empty, otherwise from
// every other item that carries a post identifier and a media URL.
func (n *Normalizer) Normalize(items []domain.RawItem) (domain.Profile, []domain.Post, error) {
	if len(items) == 0 {
		return domain.Profile{}, nil, domain.ErrEmptyResult
	}

	profileIdx, adapter, profile, found := n.findProfile(items)
	if !found {
		return domain.Profile{}, nil, fmt.Errorf("%w: none of %d items has a username and follower count",
			domain.ErrProfileNotFound, len(items))
	}
	if profile.Username == "" {
		return domain.Profile{}, nil, fmt.Errorf("%w: %s profile item has no usable username",
			domain.ErrNormalize, adapter.Name)
	}

	now := n.now()

	if nested := adapter.NestedPosts(items[profileIdx]); len(nested) > 0 {
		return profile, n.adaptPosts(nested, false, now), nil
	}

	flat := make([]domain.RawItem, 0, len(items)-1)
	for i, item := range items {
		if i != profileIdx {
			flat = append(flat, item)
		}
	}

	return profile, n.adaptPosts(flat, true, now), nil
}

// ProfileShape names the adapter that recognises item, or "" when none does.
func (n *Normalizer) ProfileShape(item domain.RawItem) string {
	for _, a := range n.profileAdapters() {
		if a.Matches(item) {
			return a.Name
		}
	}
	return ""
}

func (n *Normalizer) findProfile(items []domain.RawItem) (int, ProfileAdapter, domain.Profile, bool) {
	adapters := n.profileAdapters()
	for i, item := range items {
		for _, a := range adapters {
			if profile, ok := a.Adapt(item); ok {
				return i, a, profile, true
			}
		}
	}
	return -1, ProfileAdapter{}, domain.Profile{}, false
}

func (n *Normalizer) adaptPosts(items []domain.RawItem, requireMedia bool, now time.Time) []domain.Post {
	adapters := n.postAdapters()
	posts := make([]domain.Post, 0, len(items))
	for _, item := range items {
		for _, a := range adapters {
			if post, ok := a.Adapt(item, requireMedia, now); ok {
				posts = append(posts, post)
				break
			}
		}
	}
	return posts
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Normalizer) profileAdapters() []ProfileAdapter {
	if len(n.ProfileAdapters) > 0 {
		return n.ProfileAdapters
	}
	return ProfileAdapters
}

func (n *Normalizer) postAdapters() []PostAdapter {
	if len(n.PostAdapters) > 0 {
		return n.PostAdapters
	}
	return PostAdapters
}
