package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/events"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/tokens"
)

// StoreTimeout bounds every call the flows make to the credential store or
// the ledger.
const StoreTimeout = 5 * time.Second

// CredentialStore resolves principals and verifies their secrets. Lookups
// return an error classified as apperr.KindNotFound when no principal matches.
type CredentialStore interface {
	FindByHandleOrEmail(ctx context.Context, handle, email string) (models.Principal, error)
	FindByID(ctx context.Context, id string) (models.Principal, error)
	VerifySecret(ctx context.Context, principal models.Principal, secret string) (bool, error)
}

// Session is the outcome of a login or refresh: the redacted principal and a
// freshly minted token pair.
type Session struct {
	Principal models.Principal
	Tokens    models.SessionTokens
}

// Credentials identify a principal by handle or email plus a secret.
type Credentials struct {
	Handle   string
	Email    string
	Password string
}

// Service implements the login, refresh and logout flows and the access
// token check used by the auth gate.
type Service struct {
	store     CredentialStore
	tokens    *tokens.Manager
	ledger    Ledger
	publisher events.Publisher
}

// NewService wires the flows to their collaborators. A nil publisher drops
// events.
func NewService(store CredentialStore, manager *tokens.Manager, ledger Ledger, publisher events.Publisher) *Service {
	if store == nil || manager == nil || ledger == nil {
		panic("auth: credential store, token manager and ledger must not be nil")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{store: store, tokens: manager, ledger: ledger, publisher: publisher}
}

// Login verifies creds, mints a token pair and records the refresh token,
// revoking whatever session the principal held before.
func (s *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	handle := strings.ToLower(strings.TrimSpace(creds.Handle))
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if handle == "" && email == "" {
		return Session{}, apperr.Validation("username or email is required")
	}
	if creds.Password == "" {
		return Session{}, apperr.Validation("password is required")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	principal, err := s.store.FindByHandleOrEmail(lookupCtx, handle, email)
	cancel()
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Session{}, apperr.Unauthenticated("invalid user credentials")
		}
		return Session{}, apperr.Upstream("credential store unavailable", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	ok, err := s.store.VerifySecret(verifyCtx, principal, creds.Password)
	cancel()
	if err != nil {
		return Session{}, apperr.Upstream("credential store unavailable", err)
	}
	if !ok {
		return Session{}, apperr.Unauthenticated("invalid user credentials")
	}

	pair, err := s.mint(principal.ID)
	if err != nil {
		return Session{}, err
	}

	recordCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	err = s.ledger.Record(recordCtx, principal.ID, pair.RefreshToken)
	cancel()
	if err != nil {
		return Session{}, apperr.Upstream("session store unavailable", err)
	}

	s.publish(ctx, events.KindLogin, principal.ID)
	return Session{Principal: redact(principal), Tokens: pair}, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented token
// must be the one currently recorded in the ledger; the swap is atomic so
// that racing refreshes on one token produce a single winner.
func (s *Service) Refresh(ctx context.Context, raw string) (_ Session, err error) {
	ctx, span := logging.StartSpan(ctx, "auth.refresh")
	defer func() {
		span.Fail(err)
		span.End()
	}()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, apperr.Unauthenticated("unauthorized request")
	}

	principalID, err := s.tokens.Validate(raw, tokens.Refresh)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return Session{}, apperr.Wrap(apperr.KindAuthentication, "refresh token is expired, please log in again", err)
		}
		return Session{}, apperr.Wrap(apperr.KindAuthentication, "invalid refresh token", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	principal, err := s.store.FindByID(lookupCtx, principalID)
	cancel()
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Session{}, apperr.Wrap(apperr.KindAuthentication, "invalid refresh token", err)
		}
		return Session{}, apperr.Upstream("credential store unavailable", err)
	}

	pair, err := s.mint(principal.ID)
	if err != nil {
		return Session{}, err
	}

	rotateCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	err = s.ledger.Rotate(rotateCtx, principal.ID, raw, pair.RefreshToken)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenMismatch):
			logging.FromContext(ctx).Warn("stale refresh token presented", "principalId", principal.ID, "error", err)
			s.publish(ctx, events.KindRefreshReused, principal.ID)
			return Session{}, apperr.Wrap(apperr.KindAuthentication, "refresh token is expired or used, please log in again", err)
		case errors.Is(err, ErrNoSession):
			logging.FromContext(ctx).Info("refresh presented without a session", "principalId", principal.ID)
			return Session{}, apperr.Wrap(apperr.KindAuthentication, "refresh token is expired or used, please log in again", err)
		}
		return Session{}, apperr.Upstream("session store unavailable", err)
	}

	s.publish(ctx, events.KindRefresh, principal.ID)
	return Session{Principal: redact(principal), Tokens: pair}, nil
}

// Logout clears the principal's ledger entry. Outstanding access tokens stay
// valid until they expire.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	if strings.TrimSpace(principalID) == "" {
		return apperr.Unauthenticated("unauthorized request")
	}

	clearCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	err := s.ledger.Clear(clearCtx, principalID)
	cancel()
	if err != nil {
		return apperr.Upstream("session store unavailable", err)
	}

	s.publish(ctx, events.KindLogout, principalID)
	return nil
}

// Authenticate resolves an access token to its principal. Every failure,
// including store errors, is reported as an authentication failure.
func (s *Service) Authenticate(ctx context.Context, raw string) (models.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Principal{}, apperr.Unauthenticated("unauthorized request")
	}

	principalID, err := s.tokens.Validate(raw, tokens.Access)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return models.Principal{}, apperr.Wrap(apperr.KindAuthentication, "access token expired", err)
		}
		return models.Principal{}, apperr.Wrap(apperr.KindAuthentication, "invalid access token", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, StoreTimeout)
	principal, err := s.store.FindByID(lookupCtx, principalID)
	cancel()
	if err != nil {
		return models.Principal{}, apperr.Wrap(apperr.KindAuthentication, "invalid access token", err)
	}
	return redact(principal), nil
}

func (s *Service) mint(principalID string) (models.SessionTokens, error) {
	access, err := s.tokens.IssueAccess(principalID)
	if err != nil {
		return models.SessionTokens{}, apperr.Internal("failed to generate tokens", err)
	}
	refresh, err := s.tokens.IssueRefresh(principalID)
	if err != nil {
		return models.SessionTokens{}, apperr.Internal("failed to generate tokens", err)
	}
	return models.SessionTokens{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *Service) publish(ctx context.Context, kind events.Kind, principalID string) {
	event := events.Event{
		Kind:        kind,
		PrincipalID: principalID,
		RequestID:   logging.RequestIDFromContext(ctx),
		OccurredAt:  time.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), StoreTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		logging.FromContext(ctx).Warn("publish session event failed", "kind", kind, "principalId", principalID, "error", err)
	}
}

func redact(p models.Principal) models.Principal {
	p.PasswordHash = ""
	p.RefreshTokenHash = ""
	return p
}
