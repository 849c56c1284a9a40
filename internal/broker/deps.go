// Package broker implements the identity exchange and current-session
// pipelines on top of the token codec, identity store and directory clients.
package broker

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/auth"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/directory"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/users"
)

// TokenCodec signs and verifies compact tokens.
type TokenCodec interface {
	Issuer() string
	Sign(secret []byte, payload map[string]any, ttl time.Duration) (string, error)
	Verify(secret []byte, token string) optional.Value[auth.Claims]
}

// IdentityResolver maps a provider subject onto a local user, provisioning it when new.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, providerSubjectID string) (users.User, error)
}

// UserLoader reads a user with its identities.
type UserLoader interface {
	Load(ctx context.Context, userID string) (optional.Value[users.User], error)
}

// ProfileFetcher looks up profiles.
type ProfileFetcher interface {
	GetProfileByID(ctx context.Context, id string) (optional.Value[directory.Profile], error)
}

// PersonFetcher looks up people.
type PersonFetcher interface {
	GetPersonByID(ctx context.Context, id string) (optional.Value[directory.Person], error)
}

// PeopleDirectory serves person lookups and role listings.
type PeopleDirectory interface {
	PersonFetcher
	IsValidRole(role string) bool
	GetPeopleByRole(ctx context.Context, role string) ([]directory.EditorAlias, error)
}
