package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/events"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/tokens"
)

type fakeCredentialStore struct {
	mu         sync.Mutex
	principals map[string]models.Principal
	passwords  map[string]string
	err        error
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		principals: make(map[string]models.Principal),
		passwords:  make(map[string]string),
	}
}

func (f *fakeCredentialStore) add(p models.Principal, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.PasswordHash = "hash:" + password
	f.principals[p.ID] = p
	f.passwords[p.ID] = password
}

func (f *fakeCredentialStore) FindByHandleOrEmail(_ context.Context, handle, email string) (models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Principal{}, f.err
	}
	for _, p := range f.principals {
		if (handle != "" && p.Handle == handle) || (email != "" && p.Email == email) {
			return p, nil
		}
	}
	return models.Principal{}, apperr.NotFound("record not found")
}

func (f *fakeCredentialStore) FindByID(_ context.Context, id string) (models.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Principal{}, f.err
	}
	p, ok := f.principals[id]
	if !ok {
		return models.Principal{}, apperr.NotFound("record not found")
	}
	return p, nil
}

func (f *fakeCredentialStore) VerifySecret(_ context.Context, p models.Principal, secret string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passwords[p.ID] == secret, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingPublisher) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type testEnv struct {
	service   *Service
	store     *fakeCredentialStore
	ledger    *InMemoryLedger
	manager   *tokens.Manager
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	manager, err := tokens.NewManager(tokens.Config{
		AccessSecret:  []byte("access-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("refresh-secret"),
		RefreshTTL:    24 * time.Hour,
		Issuer:        "vidtube-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	store := newFakeCredentialStore()
	store.add(models.Principal{ID: "user-1", Handle: "cac", Email: "cac@example.com", FullName: "Cac"}, "correct")
	ledger := NewInMemoryLedger()
	publisher := &recordingPublisher{}
	return testEnv{
		service:   NewService(store, manager, ledger, publisher),
		store:     store,
		ledger:    ledger,
		manager:   manager,
		publisher: publisher,
	}
}

func TestLoginIssuesValidPair(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.service.Login(context.Background(), Credentials{Handle: "CAC", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Principal.ID != "user-1" {
		t.Fatalf("unexpected principal %+v", session.Principal)
	}
	if session.Principal.PasswordHash != "" || session.Principal.RefreshTokenHash != "" {
		t.Fatal("expected secret fields to be redacted")
	}

	if id, err := env.manager.Validate(session.Tokens.AccessToken, tokens.Access); err != nil || id != "user-1" {
		t.Fatalf("access token: id=%q err=%v", id, err)
	}
	if id, err := env.manager.Validate(session.Tokens.RefreshToken, tokens.Refresh); err != nil || id != "user-1" {
		t.Fatalf("refresh token: id=%q err=%v", id, err)
	}

	fp, err := env.ledger.Current(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ledger current: %v", err)
	}
	if fp != tokens.Fingerprint(session.Tokens.RefreshToken) {
		t.Fatal("expected ledger to hold the issued refresh token")
	}
}

func TestLoginByEmail(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.service.Login(context.Background(), Credentials{Email: " Cac@Example.com ", Password: "correct"}); err != nil {
		t.Fatalf("login by email: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	cases := []struct {
		name  string
		creds Credentials
		setup func(*fakeCredentialStore)
		want  apperr.Kind
	}{
		{name: "missingIdentifier", creds: Credentials{Password: "correct"}, want: apperr.KindValidation},
		{name: "missingPassword", creds: Credentials{Handle: "cac"}, want: apperr.KindValidation},
		{name: "unknownUser", creds: Credentials{Handle: "nobody", Password: "correct"}, want: apperr.KindAuthentication},
		{name: "wrongPassword", creds: Credentials{Handle: "cac", Password: "wrong"}, want: apperr.KindAuthentication},
		{
			name:  "storeFailure",
			creds: Credentials{Handle: "cac", Password: "correct"},
			setup: func(s *fakeCredentialStore) { s.err = errors.New("connection refused") },
			want:  apperr.KindUpstream,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tc.setup != nil {
				tc.setup(env.store)
			}
			_, err := env.service.Login(context.Background(), tc.creds)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperr.KindOf(err); got != tc.want {
				t.Fatalf("expected kind %s got %s (%v)", tc.want, got, err)
			}
			if env.ledger.Has("user-1") {
				t.Fatal("failed login must not record a session")
			}
		})
	}
}

func TestLoginDoesNotRevealUnknownUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, unknown := env.service.Login(ctx, Credentials{Handle: "nobody", Password: "correct"})
	_, wrong := env.service.Login(ctx, Credentials{Handle: "cac", Password: "wrong"})
	if unknown == nil || wrong == nil {
		t.Fatalf("expected both logins to fail, got %v and %v", unknown, wrong)
	}
	if apperr.KindOf(unknown) != apperr.KindOf(wrong) {
		t.Fatalf("expected matching kinds, got %s and %s", apperr.KindOf(unknown), apperr.KindOf(wrong))
	}
	if apperr.Message(unknown) != apperr.Message(wrong) {
		t.Fatalf("expected matching messages, got %q and %q", apperr.Message(unknown), apperr.Message(wrong))
	}
}

func TestRefreshRotatesAndIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := env.service.Refresh(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.Tokens.RefreshToken == first.Tokens.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}

	_, err = env.service.Refresh(ctx, first.Tokens.RefreshToken)
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("expected authentication error on reuse, got %v", err)
	}
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected mismatch cause, got %v", err)
	}

	// The rotated token survives the rejected reuse.
	if _, err := env.service.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}

	kinds := env.publisher.kinds()
	want := []events.Kind{events.KindLogin, events.KindRefresh, events.KindRefreshReused, events.KindRefresh}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected events %v got %v", want, kinds)
		}
	}
}

func TestLogoutInvalidatesRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.service.Logout(ctx, "user-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if env.ledger.Has("user-1") {
		t.Fatal("expected ledger entry to be cleared")
	}

	_, err = env.service.Refresh(ctx, session.Tokens.RefreshToken)
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("expected authentication error after logout, got %v", err)
	}
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no-session cause, got %v", err)
	}

	// A refresh after logout is ordinary expiry, not token reuse.
	kinds := env.publisher.kinds()
	want := []events.Kind{events.KindLogin, events.KindLogout}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Fatalf("expected events %v got %v", want, kinds)
	}
}

func TestLoginRevokesPreviousSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"}); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, err := env.service.Refresh(ctx, first.Tokens.RefreshToken); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("expected first refresh token to be revoked, got %v", err)
	}
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		winner    string
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			refreshed, err := env.service.Refresh(ctx, session.Tokens.RefreshToken)
			if err != nil {
				if !apperr.Is(err, apperr.KindAuthentication) {
					t.Errorf("unexpected error kind: %v", err)
				}
				return
			}
			mu.Lock()
			successes++
			winner = refreshed.Tokens.RefreshToken
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", successes)
	}
	fp, err := env.ledger.Current(ctx, "user-1")
	if err != nil {
		t.Fatalf("ledger current: %v", err)
	}
	if fp != tokens.Fingerprint(winner) {
		t.Fatal("expected ledger to hold the winning refresh token")
	}
}

func TestRefreshRejectsInvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	expired, err := env.manager.WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }).IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	orphan, err := env.manager.IssueRefresh("ghost")
	if err != nil {
		t.Fatalf("issue orphan: %v", err)
	}

	cases := map[string]string{
		"empty":       "",
		"accessToken": session.Tokens.AccessToken,
		"garbage":     "abc.def.ghi",
		"expired":     expired.Value,
		"unknownUser": orphan.Value,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := env.service.Refresh(ctx, raw); !apperr.Is(err, apperr.KindAuthentication) {
				t.Fatalf("expected authentication error, got %v", err)
			}
		})
	}

	if _, err := env.service.Refresh(ctx, expired.Value); !strings.Contains(apperr.Message(err), "log in again") {
		t.Fatalf("expected re-login message, got %q", apperr.Message(err))
	}
	if _, err := env.service.Refresh(ctx, session.Tokens.RefreshToken); err != nil {
		t.Fatalf("rejected attempts must not disturb the live session: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.service.Login(ctx, Credentials{Handle: "cac", Password: "correct"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	principal, err := env.service.Authenticate(ctx, session.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.ID != "user-1" || principal.PasswordHash != "" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	ghost, _ := env.manager.IssueAccess("ghost")
	for name, raw := range map[string]string{
		"empty":        "",
		"refreshToken": session.Tokens.RefreshToken,
		"unknownUser":  ghost.Value,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := env.service.Authenticate(ctx, raw); !apperr.Is(err, apperr.KindAuthentication) {
				t.Fatalf("expected authentication error, got %v", err)
			}
		})
	}

	env.store.err = errors.New("timeout")
	if _, err := env.service.Authenticate(ctx, session.Tokens.AccessToken); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("expected store failure to fail closed, got %v", err)
	}
}

func TestInMemoryLedgerRotate(t *testing.T) {
	ledger := NewInMemoryLedger()
	ctx := context.Background()

	if err := ledger.Rotate(ctx, "user-1", "a", "b"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession got %v", err)
	}
	if err := ledger.Record(ctx, "user-1", "a"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.Rotate(ctx, "user-1", "x", "b"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch got %v", err)
	}
	if err := ledger.Rotate(ctx, "user-1", "a", "b"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if fp, _ := ledger.Current(ctx, "user-1"); fp != tokens.Fingerprint("b") {
		t.Fatal("expected rotated fingerprint")
	}
	if err := ledger.Clear(ctx, "user-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := ledger.Current(ctx, "user-1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear got %v", err)
	}
}
