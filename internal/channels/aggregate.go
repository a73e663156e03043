package channels

import (
	"github.com/vidtube/backend/internal/models"
)

// ChannelSnapshot is a consistent read of one channel and every subscription
// edge touching it, either as the channel or as the subscriber.
type ChannelSnapshot struct {
	Channel models.Principal
	Edges   []models.Subscription
}

// HistorySnapshot is a consistent read of a principal's watch history and
// the rows it references. Owners maps an owner id to the principals that
// matched it; more than one candidate only appears with inconsistent data.
type HistorySnapshot struct {
	VideoIDs []string
	Videos   map[string]models.Video
	Owners   map[string][]models.OwnerSummary
}

// BuildProfile derives the channel profile seen by viewerID. All three
// derived fields come from the same edge set.
func BuildProfile(snap ChannelSnapshot, viewerID string) models.ChannelProfile {
	channelID := snap.Channel.ID
	subscribers := make(map[string]struct{})
	subscribedTo := make(map[string]struct{})

	for _, edge := range snap.Edges {
		if edge.ChannelID == channelID {
			subscribers[edge.SubscriberID] = struct{}{}
		}
		if edge.SubscriberID == channelID {
			subscribedTo[edge.ChannelID] = struct{}{}
		}
	}

	_, isSubscribed := subscribers[viewerID]
	return models.ChannelProfile{
		ID:                channelID,
		Handle:            snap.Channel.Handle,
		Email:             snap.Channel.Email,
		FullName:          snap.Channel.FullName,
		Avatar:            snap.Channel.Avatar,
		CoverImage:        snap.Channel.CoverImage,
		SubscriberCount:   len(subscribers),
		SubscribedToCount: len(subscribedTo),
		IsSubscribed:      viewerID != "" && isSubscribed,
	}
}

// BuildHistory joins the watch history with videos and owners. Order follows
// VideoIDs; ids with no video row are dropped. When several owner candidates
// exist the one with the lowest id wins; with none the owner is nil.
func BuildHistory(snap HistorySnapshot) []models.VideoWithOwner {
	out := make([]models.VideoWithOwner, 0, len(snap.VideoIDs))
	for _, id := range snap.VideoIDs {
		video, ok := snap.Videos[id]
		if !ok {
			continue
		}
		out = append(out, models.VideoWithOwner{
			ID:          video.ID,
			Title:       video.Title,
			Description: video.Description,
			Thumbnail:   video.Thumbnail,
			VideoURL:    video.VideoURL,
			Duration:    video.Duration,
			Views:       video.Views,
			CreatedAt:   video.CreatedAt,
			Owner:       firstOwner(snap.Owners[video.OwnerID]),
		})
	}
	return out
}

func firstOwner(candidates []models.OwnerSummary) *models.OwnerSummary {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ID < best.ID {
			best = c
		}
	}
	return &best
}
