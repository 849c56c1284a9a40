package broker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/audit"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSessionTTL     = 30 * time.Minute
	defaultPublishTimeout = 5 * time.Second

	providerSubjectClaim = "id"

	loginResultAuthorized   = "authorized"
	loginResultMissingToken = "missing_token"
	loginResultInvalidToken = "invalid_token"
	loginResultStorageError = "storage_error"
	loginResultSignFailure  = "sign_failure"
)

// ExchangeConfig wires the identity exchange pipeline.
type ExchangeConfig struct {
	Codec          TokenCodec
	Resolver       IdentityResolver
	Publisher      audit.Publisher
	ProviderSecret []byte
	SessionSecret  []byte
	ReturnURL      string
	SessionTTL     time.Duration
	PublishTimeout time.Duration
	Clock          func() time.Time
	TokenIDs       func() string
	Logger         *zap.Logger
	Metrics        *metrics.Collectors
}

// Login is the result of a successful identity exchange.
type Login struct {
	UserID      string
	Token       string
	RedirectURL string
}

// Exchange turns provider tokens into session tokens.
type Exchange struct {
	codec          TokenCodec
	resolver       IdentityResolver
	publisher      audit.Publisher
	providerSecret []byte
	sessionSecret  []byte
	returnURL      string
	sessionTTL     time.Duration
	publishTimeout time.Duration
	clock          func() time.Time
	tokenIDs       func() string
	logger         *zap.Logger
	metrics        *metrics.Collectors
	inflight       sync.WaitGroup
}

// NewExchange validates cfg and constructs the pipeline.
func NewExchange(cfg ExchangeConfig) (*Exchange, error) {
	switch {
	case cfg.Codec == nil:
		return nil, errMissingCodec
	case cfg.Resolver == nil:
		return nil, errMissingResolver
	case cfg.Publisher == nil:
		return nil, errMissingPublisher
	case len(cfg.ProviderSecret) == 0:
		return nil, errMissingProviderSecret
	case len(cfg.SessionSecret) == 0:
		return nil, errMissingSessionSecret
	case bytes.Equal(cfg.ProviderSecret, cfg.SessionSecret):
		return nil, errSharedSecret
	case strings.TrimSpace(cfg.ReturnURL) == "":
		return nil, errMissingReturnURL
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	tokenIDs := cfg.TokenIDs
	if tokenIDs == nil {
		tokenIDs = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Exchange{
		codec:          cfg.Codec,
		resolver:       cfg.Resolver,
		publisher:      cfg.Publisher,
		providerSecret: append([]byte(nil), cfg.ProviderSecret...),
		sessionSecret:  append([]byte(nil), cfg.SessionSecret...),
		returnURL:      strings.TrimSpace(cfg.ReturnURL),
		sessionTTL:     ttl,
		publishTimeout: publishTimeout,
		clock:          clock,
		tokenIDs:       tokenIDs,
		logger:         logger,
		metrics:        cfg.Metrics,
	}, nil
}

// Authenticate verifies a provider token, resolves or provisions the local
// user and issues a session token for it. The login audit event is
// published in the background; its failure never fails the login.
func (e *Exchange) Authenticate(ctx context.Context, rawToken string) (Login, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		e.logger.Warn("no token provided")
		e.metrics.ObserveLogin(loginResultMissingToken)
		return Login{}, ErrMissingToken
	}

	claims, ok := e.codec.Verify(e.providerSecret, token).Get()
	if !ok {
		e.metrics.ObserveLogin(loginResultInvalidToken)
		return Login{}, ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.String(providerSubjectClaim))
	if subject == "" {
		e.logger.Warn("provider token missing subject")
		e.metrics.ObserveLogin(loginResultInvalidToken)
		return Login{}, ErrInvalidToken
	}

	// Collaborator calls outlive a disconnecting caller.
	detached := context.WithoutCancel(ctx)

	user, err := e.resolver.ResolveOrCreate(detached, subject)
	if err != nil {
		e.logger.Error("identity resolution failed", zap.Error(err))
		e.metrics.ObserveLogin(loginResultStorageError)
		return Login{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	signed, err := e.codec.Sign(e.sessionSecret, map[string]any{
		"sub":    user.ID,
		"issuer": e.codec.Issuer(),
		"jti":    e.tokenIDs(),
	}, e.sessionTTL)
	if err != nil {
		e.logger.Error("failed to issue session token", zap.Error(err))
		e.metrics.ObserveLogin(loginResultSignFailure)
		return Login{}, fmt.Errorf("broker: sign session token: %w", err)
	}

	e.publishLogin(detached, user.ID)
	e.metrics.ObserveLogin(loginResultAuthorized)

	return Login{
		UserID:      user.ID,
		Token:       signed,
		RedirectURL: e.returnURL + "#" + signed,
	}, nil
}

// Drain waits for background audit publications to finish or ctx to end.
func (e *Exchange) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Exchange) publishLogin(ctx context.Context, userID string) {
	event := audit.Event{
		UserID:    userID,
		Result:    audit.ResultAuthorized,
		Timestamp: e.clock().UTC(),
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		publishCtx, cancel := context.WithTimeout(ctx, e.publishTimeout)
		defer cancel()
		if err := e.publisher.Publish(publishCtx, event); err != nil {
			e.logger.Warn("audit publish failed", zap.String("user_id", userID), zap.Error(err))
			e.metrics.ObserveAuditPublishFailure()
		}
	}()
}
