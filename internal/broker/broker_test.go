package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/audit"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/auth"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/directory"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/users"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer         = "identity-broker-test"
	testReturnURL      = "https://journal.example.com/login"
	testUserID         = "0192f3a4-5b6c-7d8e-9f00-112233445566"
	testProviderUserID = "0000-0002-1825-0097"
)

var (
	testProviderSecret = []byte("provider-secret")
	testSessionSecret  = []byte("session-secret")
	testNow            = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
)

func newTestCodec(t *testing.T) *auth.Codec {
	t.Helper()
	codec, err := auth.NewCodec(auth.CodecConfig{
		Issuer: testIssuer,
		Clock:  func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return codec
}

func signProviderToken(t *testing.T, codec *auth.Codec, payload map[string]any) string {
	t.Helper()
	token, err := codec.Sign(testProviderSecret, payload, time.Minute)
	require.NoError(t, err)
	return token
}

func signSessionToken(t *testing.T, codec *auth.Codec, subject string) string {
	t.Helper()
	token, err := codec.Sign(testSessionSecret, map[string]any{"sub": subject}, time.Minute)
	require.NoError(t, err)
	return token
}

func testUser() users.User {
	return users.User{
		ID:              testUserID,
		DefaultIdentity: users.HomeRealm,
		Identities: []users.Identity{{
			ID:         "0192f3a4-5b6c-7d8e-9f00-aabbccddeeff",
			UserID:     testUserID,
			Type:       users.HomeRealm,
			Identifier: testProviderUserID,
		}},
	}
}

type stubResolver struct {
	mu       sync.Mutex
	user     users.User
	err      error
	subjects []string
}

func (s *stubResolver) ResolveOrCreate(_ context.Context, subject string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	return s.user, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) recorded() []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audit.Event(nil), p.events...)
}

type stubUsers struct {
	user optional.Value[users.User]
	err  error
}

func (s stubUsers) Load(context.Context, string) (optional.Value[users.User], error) {
	return s.user, s.err
}

type stubProfiles struct {
	profile optional.Value[directory.Profile]
	err     error
}

func (s stubProfiles) GetProfileByID(context.Context, string) (optional.Value[directory.Profile], error) {
	return s.profile, s.err
}

type stubPeople struct {
	person  optional.Value[directory.Person]
	err     error
	editors []directory.EditorAlias
	roles   []string
}

func (s *stubPeople) GetPersonByID(context.Context, string) (optional.Value[directory.Person], error) {
	return s.person, s.err
}

func (s *stubPeople) IsValidRole(role string) bool {
	return directory.IsValidRole(role)
}

func (s *stubPeople) GetPeopleByRole(_ context.Context, role string) ([]directory.EditorAlias, error) {
	s.roles = append(s.roles, role)
	return s.editors, s.err
}

var errBoom = errors.New("boom")
