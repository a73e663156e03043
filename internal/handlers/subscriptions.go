package handlers

import (
	"net/http"

	"github.com/vidtube/backend/internal/respond"
)

// SubscriptionHandler implements /api/v1/subscriptions.
type SubscriptionHandler struct {
	Channels ChannelViews
}

// Subscribe handles POST /api/v1/subscriptions/c/{channelID}.
func (h SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	sub, err := h.Channels.Subscribe(ctx, principal.ID, r.PathValue("channelID"))
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusCreated, sub, "subscribed successfully")
}

// Unsubscribe handles DELETE /api/v1/subscriptions/c/{channelID}.
func (h SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.Channels.Unsubscribe(ctx, principal.ID, r.PathValue("channelID")); err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusOK, struct{}{}, "unsubscribed successfully")
}
