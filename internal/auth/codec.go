package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/optional"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	defaultTokenTTL = 30 * time.Minute

	claimIssuer    = "iss"
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
	claimSubject   = "sub"
	claimTokenID   = "jti"
)

var (
	ErrMissingIssuer        = errors.New("auth: issuer required")
	errMissingSigningSecret = errors.New("signing secret must be provided")
)

// CodecConfig configures the compact token codec.
type CodecConfig struct {
	Issuer string
	Clock  func() time.Time
	Logger *zap.Logger
}

// Codec signs and verifies HS256 tokens against caller supplied secrets.
type Codec struct {
	issuer string
	clock  func() time.Time
	logger *zap.Logger
}

// NewCodec constructs a Codec whose signed tokens carry the configured issuer.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{
		issuer: issuer,
		clock:  clock,
		logger: logger,
	}, nil
}

// Issuer returns the issuer stamped on every signed token.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Sign produces a compact token for payload valid for ttl. The registered
// iss, iat and exp claims are always set by the codec.
func (c *Codec) Sign(secret []byte, payload map[string]any, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errMissingSigningSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := c.clock().UTC()
	claims := make(jwt.MapClaims, len(payload)+3)
	for name, value := range payload {
		claims[name] = value
	}
	claims[claimIssuer] = c.issuer
	claims[claimIssuedAt] = jwt.NewNumericDate(now)
	claims[claimExpiresAt] = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the claims of tokenString when its signature validates
// against secret and it has not expired. Failures are logged without any
// claim content and reported as an absent value.
func (c *Codec) Verify(secret []byte, tokenString string) optional.Value[Claims] {
	token := strings.TrimSpace(tokenString)
	if len(secret) == 0 || token == "" {
		c.logger.Warn("token verification failed", zap.String("reason", "missing_token"))
		return optional.None[Claims]()
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return secret, nil
		},
		jwt.WithTimeFunc(c.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		c.logger.Warn("token verification failed", zap.String("reason", verificationFailureReason(err)))
		return optional.None[Claims]()
	}
	if parsed == nil || !parsed.Valid {
		c.logger.Warn("token verification failed", zap.String("reason", "invalid"))
		return optional.None[Claims]()
	}
	return optional.Some(newClaims(claims))
}

func verificationFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "required_claim_missing"
	default:
		return "invalid"
	}
}
