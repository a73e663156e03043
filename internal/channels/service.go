// Package channels computes relationship views over subscription edges:
// channel profiles relative to a viewer and denormalized watch history.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
)

const storeTimeout = 5 * time.Second

// Store reads snapshots and mutates subscription edges. Missing rows are
// reported as apperr.KindNotFound and duplicate edges as apperr.KindConflict.
type Store interface {
	ChannelSnapshot(ctx context.Context, handle string) (ChannelSnapshot, error)
	HistorySnapshot(ctx context.Context, principalID string) (HistorySnapshot, error)
	AddSubscription(ctx context.Context, sub models.Subscription) error
	RemoveSubscription(ctx context.Context, subscriberID, channelID string) error
}

// Service serves the channel profile, watch history and subscription
// operations.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service backed by store.
func NewService(store Store) *Service {
	if store == nil {
		panic("channels: store must not be nil")
	}
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// ChannelProfile returns the profile of the channel with handle as seen by
// viewerID.
func (s *Service) ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return models.ChannelProfile{}, apperr.Validation("username is missing")
	}

	ctx, span := logging.StartSpan(ctx, "channels.profile")
	defer span.End()

	snapCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	snap, err := s.store.ChannelSnapshot(snapCtx, handle)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return models.ChannelProfile{}, apperr.NotFound("channel does not exist")
		}
		return models.ChannelProfile{}, apperr.Internal("failed to load channel", err)
	}
	return BuildProfile(snap, viewerID), nil
}

// WatchHistory returns the principal's watch history joined with owners.
func (s *Service) WatchHistory(ctx context.Context, principalID string) ([]models.VideoWithOwner, error) {
	ctx, span := logging.StartSpan(ctx, "channels.history")
	defer span.End()

	snapCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	snap, err := s.store.HistorySnapshot(snapCtx, principalID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("user does not exist")
		}
		return nil, apperr.Internal("failed to load watch history", err)
	}

	history := BuildHistory(snap)
	if dropped := len(snap.VideoIDs) - len(history); dropped > 0 {
		logging.FromContext(ctx).Debug("watch history references missing videos", "principalId", principalID, "dropped", dropped)
	}
	return history, nil
}

// Subscribe adds the edge subscriberID -> channelID.
func (s *Service) Subscribe(ctx context.Context, subscriberID, channelID string) (models.Subscription, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return models.Subscription{}, apperr.Validation("channel id is missing")
	}
	if channelID == subscriberID {
		return models.Subscription{}, apperr.Validation("cannot subscribe to your own channel")
	}

	sub := models.Subscription{SubscriberID: subscriberID, ChannelID: channelID, CreatedAt: s.now()}

	writeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.AddSubscription(writeCtx, sub); err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindConflict:
			return models.Subscription{}, apperr.Conflict("already subscribed to this channel")
		case apperr.KindNotFound:
			return models.Subscription{}, apperr.NotFound("channel does not exist")
		default:
			return models.Subscription{}, apperr.Internal("failed to subscribe", err)
		}
	}
	return sub, nil
}

// Unsubscribe removes the edge subscriberID -> channelID.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return apperr.Validation("channel id is missing")
	}

	writeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.RemoveSubscription(writeCtx, subscriberID, channelID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("not subscribed to this channel")
		}
		return apperr.Internal("failed to unsubscribe", err)
	}
	return nil
}
