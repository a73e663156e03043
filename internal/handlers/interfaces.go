package handlers

import (
	"context"

	"github.com/vidtube/backend/internal/accounts"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/models"
)

// SessionFlows runs the credential flows behind login, refresh and logout.
type SessionFlows interface {
	Login(ctx context.Context, creds auth.Credentials) (auth.Session, error)
	Refresh(ctx context.Context, raw string) (auth.Session, error)
	Logout(ctx context.Context, principalID string) error
	Authenticate(ctx context.Context, raw string) (models.Principal, error)
}

// AccountManager registers principals and edits their profiles.
type AccountManager interface {
	Register(ctx context.Context, reg accounts.Registration) (models.Principal, error)
	ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error
	UpdateAccount(ctx context.Context, principalID, fullName, email string) (models.Principal, error)
	UpdateAvatar(ctx context.Context, principalID, localPath string) (models.Principal, error)
	UpdateCoverImage(ctx context.Context, principalID, localPath string) (models.Principal, error)
}

// ChannelViews serves relationship views and subscription edges.
type ChannelViews interface {
	ChannelProfile(ctx context.Context, handle, viewerID string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, principalID string) ([]models.VideoWithOwner, error)
	Subscribe(ctx context.Context, subscriberID, channelID string) (models.Subscription, error)
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
