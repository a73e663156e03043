package models

import "time"

// Principal represents an account on the vidtube platform. A principal is
// also a channel when viewed as the owner of videos.
type Principal struct {
	ID               string
	Handle           string
	Email            string
	FullName         string
	PasswordHash     string
	Avatar           string
	CoverImage       string
	RefreshTokenHash string
	WatchHistory     []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Public returns the redacted view of the principal, without secret fields.
func (p Principal) Public() PublicPrincipal {
	history := p.WatchHistory
	if history == nil {
		history = []string{}
	}
	return PublicPrincipal{
		ID:           p.ID,
		Handle:       p.Handle,
		Email:        p.Email,
		FullName:     p.FullName,
		Avatar:       p.Avatar,
		CoverImage:   p.CoverImage,
		WatchHistory: history,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// PublicPrincipal is the principal as returned to clients.
type PublicPrincipal struct {
	ID           string    `json:"id"`
	Handle       string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	WatchHistory []string  `json:"watchHistory"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Subscription is a directed edge: Subscriber follows Channel.
type Subscription struct {
	SubscriberID string    `json:"subscriber"`
	ChannelID    string    `json:"channel"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Video is an uploaded video owned by a principal.
type Video struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Thumbnail   string
	VideoURL    string
	Duration    int
	Views       int64
	Published   bool
	CreatedAt   time.Time
}

// OwnerSummary is the projection of a principal embedded in video listings.
type OwnerSummary struct {
	ID       string `json:"id"`
	Handle   string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

// VideoWithOwner is a watch history entry joined with its owner.
type VideoWithOwner struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	VideoURL    string        `json:"videoFile"`
	Duration    int           `json:"duration"`
	Views       int64         `json:"views"`
	CreatedAt   time.Time     `json:"createdAt"`
	Owner       *OwnerSummary `json:"owner"`
}

// ChannelProfile is the derived view of a channel relative to a viewer.
type ChannelProfile struct {
	ID                string `json:"id"`
	Handle            string `json:"username"`
	Email             string `json:"email"`
	FullName          string `json:"fullName"`
	Avatar            string `json:"avatar"`
	CoverImage        string `json:"coverImage"`
	SubscriberCount   int    `json:"subscribersCount"`
	SubscribedToCount int    `json:"channelsSubscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
