package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/session")

// SessionConfig tunes the session store's background checks.
type SessionConfig struct {
	PollInterval      time.Duration
	RegistrationGrace time.Duration
}

// SessionStore is the session state machine. The tokens live in the shared
// durable storage; every change to them is announced on the broadcaster.
type SessionStore struct {
	api     port.AuthAPI
	store   port.KeyValueStore
	bus     port.Broadcaster
	cfg     SessionConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.RWMutex
	status       domain.SessionStatus
	user         *domain.User
	errMsg       string
	registeredAt time.Time

	subsMu  sync.Mutex
	subs    map[int]chan domain.SessionState
	nextSub int
}

// NewSessionStore creates a store in CheckingAuth. Call Start to resolve it.
func NewSessionStore(
	api port.AuthAPI,
	store port.KeyValueStore,
	bus port.Broadcaster,
	cfg SessionConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionStore {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &SessionStore{
		api:     api,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		status:  domain.SessionCheckingAuth,
		subs:    make(map[int]chan domain.SessionState),
	}
}

// State returns the current snapshot.
func (s *SessionStore) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *SessionStore) snapshotLocked() domain.SessionState {
	return domain.SessionState{
		Status:          s.status,
		User:            s.user,
		Error:           s.errMsg,
		IsAuthenticated: s.status == domain.SessionAuthenticated,
		IsLoading:       s.status == domain.SessionCheckingAuth || s.status == domain.SessionAuthenticating,
	}
}

// Subscribe returns a channel of state transitions and its cancel func.
// A subscriber that falls behind misses intermediate states.
func (s *SessionStore) Subscribe() (<-chan domain.SessionState, func()) {
	ch := make(chan domain.SessionState, 8)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *SessionStore) transition(status domain.SessionStatus, user *domain.User, errMsg string) {
	s.mu.Lock()
	from := s.status
	s.status = status
	s.user = user
	s.errMsg = errMsg
	state := s.snapshotLocked()
	s.mu.Unlock()

	if from != status {
		s.metrics.IncrSessionTransition(status)
		s.logger.Info("session: transition",
			zap.String("from", string(from)),
			zap.String("to", string(status)),
		)
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// Start resolves the initial CheckingAuth state against the stored token.
func (s *SessionStore) Start(ctx context.Context) {
	ctx, span := sessionTracer.Start(ctx, "SessionStore.Start")
	defer span.End()

	s.transition(domain.SessionCheckingAuth, nil, "")
	s.validate(ctx)
}

// validate checks the stored token with GET /auth/me. Any failure removes
// the token and leaves the session unauthenticated; it is never retried.
func (s *SessionStore) validate(ctx context.Context) {
	token, ok, err := s.store.Get(ctx, domain.KeyAuthToken)
	if err != nil {
		s.logger.Error("session: failed to read auth token", zap.Error(err))
		s.transition(domain.SessionUnauthenticated, nil, "")
		return
	}
	if !ok || token == "" {
		s.transition(domain.SessionUnauthenticated, nil, "")
		return
	}

	if s.expired(token) {
		s.logger.Info("session: stored token expired")
		s.dropToken(ctx)
		s.transition(domain.SessionUnauthenticated, nil, "")
		return
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("session: token validation failed", zap.Error(err))
		s.dropToken(ctx)
		s.transition(domain.SessionUnauthenticated, nil, "")
		return
	}
	s.transition(domain.SessionAuthenticated, user, "")
}

// expired reports whether token is a JWT whose exp is already past. Tokens
// that do not parse are left for the backend to judge.
func (s *SessionStore) expired(token string) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && claims.ExpiresAt.Before(s.now())
}

// Login authenticates with creds and persists the returned tokens.
func (s *SessionStore) Login(ctx context.Context, creds domain.LoginCredentials) error {
	ctx, span := sessionTracer.Start(ctx, "SessionStore.Login")
	defer span.End()

	if err := creds.Validate(); err != nil {
		s.transition(domain.SessionError, nil, domain.Message(err))
		return err
	}

	s.transition(domain.SessionAuthenticating, nil, "")
	res, err := s.api.Login(ctx, creds)
	if err != nil {
		span.RecordError(err)
		s.transition(domain.SessionError, nil, domain.Message(err))
		return err
	}
	return s.establish(ctx, res)
}

// Register creates the account and signs in with the returned tokens.
func (s *SessionStore) Register(ctx context.Context, data domain.RegisterData) error {
	ctx, span := sessionTracer.Start(ctx, "SessionStore.Register")
	defer span.End()

	if err := data.Validate(); err != nil {
		s.transition(domain.SessionError, nil, domain.Message(err))
		return err
	}

	s.transition(domain.SessionAuthenticating, nil, "")
	res, err := s.api.Register(ctx, data)
	if err != nil {
		span.RecordError(err)
		s.transition(domain.SessionError, nil, domain.Message(err))
		return err
	}

	s.mu.Lock()
	s.registeredAt = s.now()
	s.mu.Unlock()
	return s.establish(ctx, res)
}

// establish persists the tokens of res, announces them and authenticates.
func (s *SessionStore) establish(ctx context.Context, res *domain.AuthResult) error {
	access, refresh := res.Tokens()
	if err := s.store.Set(ctx, domain.KeyAuthToken, access); err != nil {
		err = fmt.Errorf("persist auth token: %w", err)
		s.transition(domain.SessionError, nil, err.Error())
		return err
	}
	if refresh != "" {
		if err := s.store.Set(ctx, domain.KeyRefreshToken, refresh); err != nil {
			s.logger.Warn("session: failed to persist refresh token", zap.Error(err))
		}
	}

	user := res.User
	if user == nil {
		u, err := s.api.Me(ctx)
		if err != nil {
			s.dropToken(ctx)
			s.transition(domain.SessionError, nil, domain.Message(err))
			return err
		}
		user = u
	}

	// Authenticated before the announcement, so our own echo is a no-op.
	s.transition(domain.SessionAuthenticated, user, "")
	s.announce(ctx, domain.KeyAuthToken, &access)
	return nil
}

// Logout invalidates the session on the backend (best effort), then clears
// both tokens and announces the removal.
func (s *SessionStore) Logout(ctx context.Context) {
	ctx, span := sessionTracer.Start(ctx, "SessionStore.Logout")
	defer span.End()

	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("session: backend logout failed", zap.Error(err))
	}

	if err := s.store.Delete(ctx, domain.KeyRefreshToken); err != nil {
		s.logger.Warn("session: failed to delete refresh token", zap.Error(err))
	}
	s.transition(domain.SessionUnauthenticated, nil, "")
	s.dropToken(ctx)
}

// Refresh trades the stored refresh token for a new access token. A failure
// is returned as-is and leaves the session alone.
func (s *SessionStore) Refresh(ctx context.Context) error {
	ctx, span := sessionTracer.Start(ctx, "SessionStore.Refresh")
	defer span.End()

	refresh, ok, err := s.store.Get(ctx, domain.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || refresh == "" {
		return &domain.ErrAuth{Message: "No refresh token found"}
	}

	access, err := s.api.Refresh(ctx, refresh)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.store.Set(ctx, domain.KeyAuthToken, access); err != nil {
		return fmt.Errorf("persist auth token: %w", err)
	}
	s.announce(ctx, domain.KeyAuthToken, &access)
	return nil
}

// ClearError returns an errored session to Unauthenticated.
func (s *SessionStore) ClearError() {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status == domain.SessionError {
		s.transition(domain.SessionUnauthenticated, nil, "")
	}
}

// Run keeps the session in step with the shared storage until ctx ends. It
// reacts to announced authToken changes and polls the storage as a fallback.
func (s *SessionStore) Run(ctx context.Context) error {
	changes, cancel := s.bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return errors.New("session: broadcast channel closed")
			}
			if change.Key == domain.KeyAuthToken {
				s.reconcile(ctx, !change.Removed(), "broadcast")
			}
		case <-ticker.C:
			token, ok, err := s.store.Get(ctx, domain.KeyAuthToken)
			if err != nil {
				s.logger.Warn("session: poll failed", zap.Error(err))
				continue
			}
			s.reconcile(ctx, ok && token != "", "poll")
		}
	}
}

// reconcile aligns the state with the presence of a token. A token that
// appears while signed out is validated; one that disappears while signed in
// signs out without a network call.
func (s *SessionStore) reconcile(ctx context.Context, present bool, trigger string) {
	s.mu.RLock()
	status := s.status
	inGrace := !s.registeredAt.IsZero() && s.now().Sub(s.registeredAt) < s.cfg.RegistrationGrace
	s.mu.RUnlock()

	switch {
	case present && (status == domain.SessionUnauthenticated || status == domain.SessionError):
		if inGrace {
			s.logger.Debug("session: skipping validation during registration grace")
			return
		}
		ctx, span := sessionTracer.Start(ctx, "SessionStore.reconcile")
		span.SetAttributes(attribute.String("trigger", trigger))
		defer span.End()
		s.validate(ctx)
		if trigger == "poll" && s.State().IsAuthenticated {
			// the broadcast missed it, so the aggregators did too
			if token, ok, err := s.store.Get(ctx, domain.KeyAuthToken); err == nil && ok {
				s.announce(ctx, domain.KeyAuthToken, &token)
			}
		}
	case !present && status == domain.SessionAuthenticated:
		s.logger.Info("session: token removed elsewhere", zap.String("trigger", trigger))
		s.transition(domain.SessionUnauthenticated, nil, "")
		if trigger == "poll" {
			s.announce(ctx, domain.KeyAuthToken, nil)
		}
	}
}

// dropToken deletes the access token and announces the removal.
func (s *SessionStore) dropToken(ctx context.Context) {
	if err := s.store.Delete(ctx, domain.KeyAuthToken); err != nil {
		s.logger.Warn("session: failed to delete auth token", zap.Error(err))
	}
	s.announce(ctx, domain.KeyAuthToken, nil)
}

func (s *SessionStore) announce(ctx context.Context, key string, value *string) {
	if err := s.bus.Publish(ctx, domain.StorageChange{Key: key, Value: value}); err != nil {
		s.logger.Warn("session: failed to announce change", zap.String("key", key), zap.Error(err))
	}
}
