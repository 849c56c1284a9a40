package broker

import "errors"

// Request-scoped failures of the broker pipelines. Callers match them with
// errors.Is; underlying causes are wrapped where one exists.
var (
	ErrMissingToken          = errors.New("broker: missing token")
	ErrInvalidToken          = errors.New("broker: invalid token")
	ErrUserNotFound          = errors.New("broker: user not found")
	ErrIdentityNotFound      = errors.New("broker: identity not found")
	ErrProfileNotFound       = errors.New("broker: profile not found")
	ErrPersonNotFound        = errors.New("broker: person not found")
	ErrInvalidRole           = errors.New("broker: invalid role")
	ErrStorage               = errors.New("broker: storage error")
	ErrDownstreamUnavailable = errors.New("broker: downstream unavailable")
)

var (
	errMissingCodec          = errors.New("broker: token codec required")
	errMissingResolver       = errors.New("broker: identity resolver required")
	errMissingPublisher      = errors.New("broker: audit publisher required")
	errMissingUserLoader     = errors.New("broker: user loader required")
	errMissingProfiles       = errors.New("broker: profile client required")
	errMissingPeople         = errors.New("broker: people client required")
	errMissingProviderSecret = errors.New("broker: provider secret required")
	errMissingSessionSecret  = errors.New("broker: session secret required")
	errMissingReturnURL      = errors.New("broker: return url required")
	errSharedSecret          = errors.New("broker: provider and session secrets must differ")
)
