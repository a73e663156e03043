package channels

import (
	"testing"

	"github.com/vidtube/backend/internal/models"
)

func edge(subscriber, channel string) models.Subscription {
	return models.Subscription{SubscriberID: subscriber, ChannelID: channel}
}

func TestBuildProfile(t *testing.T) {
	snap := ChannelSnapshot{
		Channel: models.Principal{ID: "x", Handle: "chan", FullName: "Channel X"},
		Edges: []models.Subscription{
			edge("a", "x"),
			edge("b", "x"),
			edge("c", "x"),
			edge("x", "b"),
		},
	}

	cases := []struct {
		viewer       string
		isSubscribed bool
	}{
		{viewer: "a", isSubscribed: true},
		{viewer: "c", isSubscribed: true},
		{viewer: "d", isSubscribed: false},
		{viewer: "x", isSubscribed: false},
		{viewer: "", isSubscribed: false},
	}
	for _, tc := range cases {
		t.Run("viewer_"+tc.viewer, func(t *testing.T) {
			profile := BuildProfile(snap, tc.viewer)
			if profile.SubscriberCount != 3 {
				t.Fatalf("expected 3 subscribers got %d", profile.SubscriberCount)
			}
			if profile.SubscribedToCount != 1 {
				t.Fatalf("expected 1 subscription got %d", profile.SubscribedToCount)
			}
			if profile.IsSubscribed != tc.isSubscribed {
				t.Fatalf("expected isSubscribed=%v got %v", tc.isSubscribed, profile.IsSubscribed)
			}
			if profile.Handle != "chan" || profile.FullName != "Channel X" {
				t.Fatalf("unexpected projection %+v", profile)
			}
		})
	}
}

func TestBuildProfileCountsDistinctEdges(t *testing.T) {
	snap := ChannelSnapshot{
		Channel: models.Principal{ID: "x"},
		Edges:   []models.Subscription{edge("a", "x"), edge("a", "x"), edge("b", "y")},
	}
	profile := BuildProfile(snap, "a")
	if profile.SubscriberCount != 1 || profile.SubscribedToCount != 0 || !profile.IsSubscribed {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestBuildProfileEmptyChannel(t *testing.T) {
	profile := BuildProfile(ChannelSnapshot{Channel: models.Principal{ID: "x", Handle: "quiet"}}, "a")
	if profile.SubscriberCount != 0 || profile.SubscribedToCount != 0 || profile.IsSubscribed {
		t.Fatalf("expected zero profile got %+v", profile)
	}
	if profile.Handle != "quiet" {
		t.Fatalf("expected channel fields to be kept, got %+v", profile)
	}
}

func TestBuildHistory(t *testing.T) {
	snap := HistorySnapshot{
		VideoIDs: []string{"v3", "v1", "gone", "v2", "v1"},
		Videos: map[string]models.Video{
			"v1": {ID: "v1", OwnerID: "o1", Title: "first"},
			"v2": {ID: "v2", OwnerID: "o2", Title: "second"},
			"v3": {ID: "v3", OwnerID: "missing", Title: "third"},
		},
		Owners: map[string][]models.OwnerSummary{
			"o1": {{ID: "o1", Handle: "one"}},
			"o2": {{ID: "o2b", Handle: "later"}, {ID: "o2a", Handle: "earlier"}},
		},
	}

	history := BuildHistory(snap)

	wantIDs := []string{"v3", "v1", "v2", "v1"}
	if len(history) != len(wantIDs) {
		t.Fatalf("expected %d entries got %d", len(wantIDs), len(history))
	}
	for i, id := range wantIDs {
		if history[i].ID != id {
			t.Fatalf("entry %d: expected %s got %s", i, id, history[i].ID)
		}
	}
	if history[0].Owner != nil {
		t.Fatalf("expected nil owner for unknown owner, got %+v", history[0].Owner)
	}
	if history[1].Owner == nil || history[1].Owner.Handle != "one" {
		t.Fatalf("unexpected owner %+v", history[1].Owner)
	}
	if history[2].Owner == nil || history[2].Owner.ID != "o2a" {
		t.Fatalf("expected lowest-id owner candidate, got %+v", history[2].Owner)
	}
}

func TestBuildHistoryEmpty(t *testing.T) {
	history := BuildHistory(HistorySnapshot{})
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", history)
	}
}
