package normalize

import (
	"fmt"
	"strings"
	"time"

	"instalytics/internal/core/domain"
)

const permalinkTemplate = "https://www.instagram.com/p/%s/"

// Canonical media types.
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaCarousel = "carousel"
)

// ProfileAdapter maps one upstream profile shape onto domain.Profile.
type ProfileAdapter struct {
	Name string

	username   []fieldPath
	followers  []fieldPath
	following  []fieldPath
	posts      []fieldPath
	fullName   []fieldPath
	biography  []fieldPath
	profilePic []fieldPath
	private    []fieldPath
	verified   []fieldPath

	// nested lists embedded posts; when node is set each element wraps the post under it.
	nested []fieldPath
	node   string
}

// Matches reports whether item exposes both a username-like and a followers-like field.
func (a ProfileAdapter) Matches(item domain.RawItem) bool {
	return has(item, a.username) && has(item, a.followers)
}

// Adapt maps item to a Profile. It returns false when the adapter does not match.
// A matched profile with an unusable username is returned with an empty Username.
func (a ProfileAdapter) Adapt(item domain.RawItem) (domain.Profile, bool) {
	if !a.Matches(item) {
		return domain.Profile{}, false
	}

	var username string
	if v, ok := first(item, a.username); ok {
		if s, isString := v.(string); isString {
			username = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
		}
	}

	return domain.Profile{
		Username:       username,
		FullName:       firstString(item, a.fullName),
		Biography:      firstString(item, a.biography),
		FollowersCount: firstCount(item, a.followers),
		FollowingCount: firstCount(item, a.following),
		PostsCount:     firstCount(item, a.posts),
		ProfilePicURL:  firstString(item, a.profilePic),
		IsPrivate:      firstBool(item, a.private),
		IsVerified:     firstBool(item, a.verified),
	}, true
}

// NestedPosts returns the post items embedded in a profile item, if any.
func (a ProfileAdapter) NestedPosts(item domain.RawItem) []domain.RawItem {
	for _, p := range a.nested {
		v, ok := p.get(item)
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}

		out := make([]domain.RawItem, 0, len(list))
		for _, elem := range list {
			m, isMap := elem.(map[string]any)
			if !isMap {
				continue
			}
			if a.node != "" {
				inner, innerOK := m[a.node].(map[string]any)
				if !innerOK {
					continue
				}
				m = inner
			}
			out = append(out, domain.RawItem(m))
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// PostAdapter maps one upstream post shape onto domain.Post.
type PostAdapter struct {
	Name string

	// markers: at least one must be present for the adapter to claim an item. Empty means any.
	markers   []fieldPath
	id        []fieldPath
	shortcode []fieldPath
	caption   []fieldPath
	likes     []fieldPath
	comments  []fieldPath
	timestamp []fieldPath
	url       []fieldPath
	mediaType []fieldPath
	isVideo   []fieldPath
	mediaURL  []fieldPath
	location  []fieldPath
}

// Matches reports whether item looks like a post in this adapter's shape.
// requireMedia additionally demands a media-URL-like field, as for flat dataset items.
func (a PostAdapter) Matches(item domain.RawItem, requireMedia bool) bool {
	if len(a.markers) > 0 && !has(item, a.markers) {
		return false
	}
	if firstString(item, a.id) == "" && firstString(item, a.shortcode) == "" {
		return false
	}
	return !requireMedia || firstString(item, a.mediaURL) != ""
}

// Adapt maps item to a Post. now fills a missing timestamp.
func (a PostAdapter) Adapt(item domain.RawItem, requireMedia bool, now time.Time) (domain.Post, bool) {
	if !a.Matches(item, requireMedia) {
		return domain.Post{}, false
	}

	id := firstString(item, a.id)
	shortcode := firstString(item, a.shortcode)
	if id == "" {
		id = shortcode
	}

	ts := now.UTC()
	if v, ok := first(item, a.timestamp); ok {
		if parsed, valid := toTime(v); valid {
			ts = parsed
		}
	}

	url := firstString(item, a.url)
	if url == "" {
		ref := shortcode
		if ref == "" {
			ref = id
		}
		url = fmt.Sprintf(permalinkTemplate, ref)
	}

	var location *string
	if loc := firstString(item, a.location); loc != "" {
		location = &loc
	}

	rawType, _ := first(item, a.mediaType)

	return domain.Post{
		ID:            id,
		Caption:       firstString(item, a.caption),
		LikesCount:    firstCount(item, a.likes),
		CommentsCount: firstCount(item, a.comments),
		Timestamp:     ts,
		URL:           url,
		MediaType:     mediaType(rawType, firstBool(item, a.isVideo)),
		MediaURL:      firstString(item, a.mediaURL),
		LocationName:  location,
	}, true
}

// mediaType folds the upstream type vocabularies (Apify names, private API codes,
// GraphQL typenames) into image, video or carousel.
func mediaType(raw any, isVideo bool) string {
	switch toString(raw) {
	case "2", "video", "Video", "GraphVideo", "clips", "Reel", "reel", "igtv", "IGTV":
		return MediaVideo
	case "8", "carousel", "Carousel", "Sidecar", "sidecar", "GraphSidecar", "carousel_container":
		return MediaCarousel
	case "1", "image", "Image", "GraphImage", "photo", "Photo":
		return MediaImage
	}
	if isVideo {
		return MediaVideo
	}
	return MediaImage
}

// ProfileAdapters lists the known profile shapes in priority order.
var ProfileAdapters = []ProfileAdapter{
	{
		Name:       "apify-camel",
		username:   []fieldPath{path("username")},
		followers:  []fieldPath{path("followersCount"), path("followerCount")},
		following:  []fieldPath{path("followsCount"), path("followingCount")},
		posts:      []fieldPath{path("postsCount"), path("mediaCount")},
		fullName:   []fieldPath{path("fullName"), path("name")},
		biography:  []fieldPath{path("biography"), path("bio")},
		profilePic: []fieldPath{path("profilePicUrlHD"), path("profilePicUrl"), path("profilePic")},
		private:    []fieldPath{path("private"), path("isPrivate")},
		verified:   []fieldPath{path("verified"), path("isVerified")},
		nested:     []fieldPath{path("latestPosts"), path("posts")},
	},
	{
		Name:       "snake-case",
		username:   []fieldPath{path("username")},
		followers:  []fieldPath{path("followers_count"), path("follower_count")},
		following:  []fieldPath{path("following_count"), path("follows_count"), path("followings_count")},
		posts:      []fieldPath{path("media_count"), path("posts_count")},
		fullName:   []fieldPath{path("full_name"), path("name")},
		biography:  []fieldPath{path("biography"), path("bio")},
		profilePic: []fieldPath{path("profile_pic_url_hd"), path("profile_pic_url")},
		private:    []fieldPath{path("is_private")},
		verified:   []fieldPath{path("is_verified")},
		nested:     []fieldPath{path("latest_posts"), path("posts"), path("items")},
	},
	{
		Name:       "graphql",
		username:   []fieldPath{path("username")},
		followers:  []fieldPath{path("edge_followed_by", "count")},
		following:  []fieldPath{path("edge_follow", "count")},
		posts:      []fieldPath{path("edge_owner_to_timeline_media", "count")},
		fullName:   []fieldPath{path("full_name")},
		biography:  []fieldPath{path("biography")},
		profilePic: []fieldPath{path("profile_pic_url_hd"), path("profile_pic_url")},
		private:    []fieldPath{path("is_private")},
		verified:   []fieldPath{path("is_verified")},
		nested:     []fieldPath{path("edge_owner_to_timeline_media", "edges")},
		node:       "node",
	},
}

// PostAdapters lists the known post shapes in priority order. snake-case has no
// markers and acts as the fallback.
var PostAdapters = []PostAdapter{
	{
		Name: "apify-camel",
		markers: []fieldPath{
			path("shortCode"), path("displayUrl"), path("imageUrl"), path("videoUrl"),
			path("likesCount"), path("commentsCount"), path("ownerUsername"),
		},
		id:        []fieldPath{path("id")},
		shortcode: []fieldPath{path("shortCode"), path("shortcode")},
		caption:   []fieldPath{path("caption")},
		likes:     []fieldPath{path("likesCount"), path("likes")},
		comments:  []fieldPath{path("commentsCount"), path("comments")},
		timestamp: []fieldPath{path("timestamp"), path("takenAt")},
		url:       []fieldPath{path("url")},
		mediaType: []fieldPath{path("type"), path("mediaType")},
		isVideo:   []fieldPath{path("isVideo")},
		mediaURL:  []fieldPath{path("displayUrl"), path("imageUrl"), path("videoUrl")},
		location:  []fieldPath{path("locationName")},
	},
	{
		Name: "graphql",
		markers: []fieldPath{
			path("__typename"), path("taken_at_timestamp"), path("edge_liked_by"),
			path("edge_media_preview_like"), path("edge_media_to_comment"),
		},
		id:        []fieldPath{path("id")},
		shortcode: []fieldPath{path("shortcode")},
		caption:   []fieldPath{path("edge_media_to_caption", "edges", "0", "node", "text")},
		likes:     []fieldPath{path("edge_liked_by", "count"), path("edge_media_preview_like", "count")},
		comments:  []fieldPath{path("edge_media_to_comment", "count")},
		timestamp: []fieldPath{path("taken_at_timestamp")},
		mediaType: []fieldPath{path("__typename")},
		isVideo:   []fieldPath{path("is_video")},
		mediaURL:  []fieldPath{path("display_url"), path("thumbnail_src")},
		location:  []fieldPath{path("location", "name")},
	},
	{
		Name:      "snake-case",
		id:        []fieldPath{path("id"), path("pk")},
		shortcode: []fieldPath{path("code"), path("shortcode")},
		caption:   []fieldPath{path("caption", "text"), path("caption")},
		likes:     []fieldPath{path("like_count"), path("likes_count")},
		comments:  []fieldPath{path("comment_count"), path("comments_count")},
		timestamp: []fieldPath{path("taken_at"), path("timestamp")},
		url:       []fieldPath{path("permalink"), path("url")},
		mediaType: []fieldPath{path("media_type"), path("product_type")},
		isVideo:   []fieldPath{path("is_video")},
		mediaURL: []fieldPath{
			path("display_url"), path("image_url"), path("thumbnail_url"),
			path("image_versions2", "candidates", "0", "url"), path("video_url"),
		},
		location: []fieldPath{path("location_name"), path("location", "name")},
	},
}
