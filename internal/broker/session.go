package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/auth"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/directory"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRole is reported when the directory holds no role for a user.
const DefaultRole = "user"

// SessionResolverConfig wires the current-session pipeline.
type SessionResolverConfig struct {
	Codec         TokenCodec
	Users         UserLoader
	Profiles      ProfileFetcher
	People        PersonFetcher
	SessionSecret []byte
	DefaultRole   string
	Logger        *zap.Logger
}

// CurrentUser is the enriched view of the caller's session.
type CurrentUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Affiliation string `json:"affiliation"`
	Role        string `json:"role"`
}

// SessionResolver turns session tokens back into users.
type SessionResolver struct {
	codec         TokenCodec
	users         UserLoader
	profiles      ProfileFetcher
	people        PersonFetcher
	sessionSecret []byte
	defaultRole   string
	logger        *zap.Logger
}

// NewSessionResolver validates cfg and constructs the resolver.
func NewSessionResolver(cfg SessionResolverConfig) (*SessionResolver, error) {
	switch {
	case cfg.Codec == nil:
		return nil, errMissingCodec
	case cfg.Users == nil:
		return nil, errMissingUserLoader
	case cfg.Profiles == nil:
		return nil, errMissingProfiles
	case cfg.People == nil:
		return nil, errMissingPeople
	case len(cfg.SessionSecret) == 0:
		return nil, errMissingSessionSecret
	}
	defaultRole := strings.TrimSpace(cfg.DefaultRole)
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionResolver{
		codec:         cfg.Codec,
		users:         cfg.Users,
		profiles:      cfg.Profiles,
		people:        cfg.People,
		sessionSecret: append([]byte(nil), cfg.SessionSecret...),
		defaultRole:   defaultRole,
		logger:        logger,
	}, nil
}

// Authorize validates the bearer session token in authorizationHeader and
// returns its subject.
func (r *SessionResolver) Authorize(authorizationHeader string) (string, error) {
	token, ok := auth.BearerToken(authorizationHeader)
	if !ok {
		r.logger.Warn("authorization header missing or malformed")
		return "", ErrInvalidToken
	}
	claims, ok := r.codec.Verify(r.sessionSecret, token).Get()
	if !ok {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject())
	if subject == "" {
		r.logger.Warn("session token missing subject")
		return "", ErrInvalidToken
	}
	return subject, nil
}

// CurrentUser resolves the session in authorizationHeader into the user's
// profile and role. A missing profile fails the request; a missing role
// falls back to the default role.
func (r *SessionResolver) CurrentUser(ctx context.Context, authorizationHeader string) (CurrentUser, error) {
	subject, err := r.Authorize(authorizationHeader)
	if err != nil {
		return CurrentUser{}, err
	}

	detached := context.WithoutCancel(ctx)

	loaded, err := r.users.Load(detached, subject)
	if err != nil {
		r.logger.Error("user lookup failed", zap.Error(err))
		return CurrentUser{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	user, ok := loaded.Get()
	if !ok {
		return CurrentUser{}, ErrUserNotFound
	}
	identity, ok := user.IdentityByType(users.HomeRealm).Get()
	if !ok {
		return CurrentUser{}, ErrIdentityNotFound
	}

	var (
		profileResult optional.Value[directory.Profile]
		personResult  optional.Value[directory.Person]
		personErr     error
		group         errgroup.Group
	)
	group.Go(func() error {
		result, err := r.profiles.GetProfileByID(detached, identity.Identifier)
		profileResult = result
		return err
	})
	group.Go(func() error {
		personResult, personErr = r.people.GetPersonByID(detached, identity.Identifier)
		return nil
	})
	if err := group.Wait(); err != nil {
		if errors.Is(err, directory.ErrUnavailable) {
			return CurrentUser{}, fmt.Errorf("%w: %v", ErrDownstreamUnavailable, err)
		}
		return CurrentUser{}, fmt.Errorf("broker: profile lookup: %w", err)
	}

	profile, ok := profileResult.Get()
	if !ok {
		return CurrentUser{}, ErrProfileNotFound
	}

	role := r.defaultRole
	if personErr != nil {
		r.logger.Warn("role lookup failed, using default role", zap.Error(personErr))
	}
	if person, ok := personResult.Get(); ok && strings.TrimSpace(person.Type.ID) != "" {
		role = person.Type.ID
	}

	return CurrentUser{
		ID:          subject,
		Name:        profile.Name.Preferred,
		Email:       profile.FirstEmail(),
		Affiliation: profile.FirstAffiliation(),
		Role:        role,
	}, nil
}
