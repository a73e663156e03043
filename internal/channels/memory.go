package channels

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/models"
)

// MemoryStore is an in-memory Store. Each snapshot is taken under a single
// read lock so it observes one version of the edge set.
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]models.Principal
	videos     map[string]models.Video
	edges      map[[2]string]models.Subscription
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]models.Principal),
		videos:     make(map[string]models.Video),
		edges:      make(map[[2]string]models.Subscription),
	}
}

// PutPrincipal inserts or replaces a principal.
func (m *MemoryStore) PutPrincipal(p models.Principal) {
	m.mu.Lock()
	p.Handle = strings.ToLower(p.Handle)
	m.principals[p.ID] = p
	m.mu.Unlock()
}

// PutVideo inserts or replaces a video.
func (m *MemoryStore) PutVideo(v models.Video) {
	m.mu.Lock()
	m.videos[v.ID] = v
	m.mu.Unlock()
}

// DeleteVideo removes a video, leaving history references dangling.
func (m *MemoryStore) DeleteVideo(id string) {
	m.mu.Lock()
	delete(m.videos, id)
	m.mu.Unlock()
}

// ChannelSnapshot implements Store.
func (m *MemoryStore) ChannelSnapshot(_ context.Context, handle string) (ChannelSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		channel models.Principal
		found   bool
	)
	for _, p := range m.principals {
		if p.Handle == handle {
			channel, found = p, true
			break
		}
	}
	if !found {
		return ChannelSnapshot{}, apperr.NotFound("record not found")
	}

	snap := ChannelSnapshot{Channel: channel}
	for _, edge := range m.edges {
		if edge.ChannelID == channel.ID || edge.SubscriberID == channel.ID {
			snap.Edges = append(snap.Edges, edge)
		}
	}
	return snap, nil
}

// HistorySnapshot implements Store.
func (m *MemoryStore) HistorySnapshot(_ context.Context, principalID string) (HistorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	principal, ok := m.principals[principalID]
	if !ok {
		return HistorySnapshot{}, apperr.NotFound("record not found")
	}

	snap := HistorySnapshot{
		VideoIDs: append([]string(nil), principal.WatchHistory...),
		Videos:   make(map[string]models.Video),
		Owners:   make(map[string][]models.OwnerSummary),
	}
	for _, id := range principal.WatchHistory {
		video, ok := m.videos[id]
		if !ok {
			continue
		}
		snap.Videos[id] = video
		if owner, ok := m.principals[video.OwnerID]; ok {
			snap.Owners[owner.ID] = []models.OwnerSummary{{
				ID:       owner.ID,
				Handle:   owner.Handle,
				FullName: owner.FullName,
				Avatar:   owner.Avatar,
			}}
		}
	}
	return snap, nil
}

// AddSubscription implements Store.
func (m *MemoryStore) AddSubscription(_ context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.principals[sub.ChannelID]; !ok {
		return apperr.NotFound("record not found")
	}
	key := [2]string{sub.SubscriberID, sub.ChannelID}
	if _, exists := m.edges[key]; exists {
		return apperr.Conflict("record conflict")
	}
	m.edges[key] = sub
	return nil
}

// RemoveSubscription implements Store.
func (m *MemoryStore) RemoveSubscription(_ context.Context, subscriberID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{subscriberID, channelID}
	if _, exists := m.edges[key]; !exists {
		return apperr.NotFound("record not found")
	}
	delete(m.edges, key)
	return nil
}

// Subscribers lists the subscriber ids of channelID in sorted order.
func (m *MemoryStore) Subscribers(channelID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for key := range m.edges {
		if key[1] == channelID {
			ids = append(ids, key[0])
		}
	}
	sort.Strings(ids)
	return ids
}
