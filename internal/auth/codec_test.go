package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testIssuer         = "identity-broker"
	testSessionSecret  = "session-secret"
	testProviderSecret = "provider-secret"
)

func newTestCodec(t *testing.T, clock func() time.Time, logger *zap.Logger) *Codec {
	t.Helper()
	codec, err := NewCodec(CodecConfig{
		Issuer: testIssuer,
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to construct codec: %v", err)
	}
	return codec
}

func TestCodecSignVerifyRoundTrip(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return clockNow }, nil)

	signed, err := codec.Sign([]byte(testSessionSecret), map[string]any{
		"sub":    "user-123",
		"issuer": testIssuer,
		"jti":    "token-1",
	}, 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected sign failure: %v", err)
	}

	claims, ok := codec.Verify([]byte(testSessionSecret), signed).Get()
	if !ok {
		t.Fatalf("expected token to verify")
	}
	if claims.Subject() != "user-123" {
		t.Fatalf("unexpected subject %q", claims.Subject())
	}
	if claims.TokenID() != "token-1" {
		t.Fatalf("unexpected token id %q", claims.TokenID())
	}
	if claims.String("issuer") != testIssuer {
		t.Fatalf("unexpected issuer payload %q", claims.String("issuer"))
	}
	if claims.Issuer != testIssuer {
		t.Fatalf("unexpected iss claim %q", claims.Issuer)
	}
	if !claims.IssuedAt.Equal(clockNow) {
		t.Fatalf("expected iat %v, got %v", clockNow, claims.IssuedAt)
	}
	if !claims.ExpiresAt.Equal(clockNow.Add(30 * time.Minute)) {
		t.Fatalf("expected exp %v, got %v", clockNow.Add(30*time.Minute), claims.ExpiresAt)
	}
	if len(claims.Payload) != 3 {
		t.Fatalf("expected only the signed payload to remain, got %v", claims.Payload)
	}
}

func TestCodecRejectsTokenSignedWithOtherSecret(t *testing.T) {
	codec := newTestCodec(t, nil, nil)

	signed, err := codec.Sign([]byte(testProviderSecret), map[string]any{"id": "TEST_ID"}, time.Minute)
	if err != nil {
		t.Fatalf("unexpected sign failure: %v", err)
	}
	if codec.Verify([]byte(testSessionSecret), signed).IsPresent() {
		t.Fatalf("expected verification with a different secret to fail")
	}
	if !codec.Verify([]byte(testProviderSecret), signed).IsPresent() {
		t.Fatalf("expected verification with the signing secret to succeed")
	}
}

func TestCodecRejectsExpiredToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	current := clockNow
	codec := newTestCodec(t, func() time.Time { return current }, nil)

	signed, err := codec.Sign([]byte(testSessionSecret), map[string]any{"sub": "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("unexpected sign failure: %v", err)
	}

	current = clockNow.Add(2 * time.Minute)
	if codec.Verify([]byte(testSessionSecret), signed).IsPresent() {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCodecRejectsUnexpectedAlgorithmAndMissingExpiry(t *testing.T) {
	codec := newTestCodec(t, nil, nil)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed512, err := hs512.SignedString([]byte(testSessionSecret))
	if err != nil {
		t.Fatalf("failed to sign HS512 token: %v", err)
	}
	if codec.Verify([]byte(testSessionSecret), signed512).IsPresent() {
		t.Fatalf("expected HS512 token to be rejected")
	}

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signedNoExpiry, err := noExpiry.SignedString([]byte(testSessionSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if codec.Verify([]byte(testSessionSecret), signedNoExpiry).IsPresent() {
		t.Fatalf("expected token without exp to be rejected")
	}
}

func TestCodecVerifyLogsReasonWithoutClaims(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	codec := newTestCodec(t, nil, zap.New(core))

	signed, err := codec.Sign([]byte(testProviderSecret), map[string]any{"sub": "secret-subject"}, time.Minute)
	if err != nil {
		t.Fatalf("unexpected sign failure: %v", err)
	}
	codec.Verify([]byte(testSessionSecret), signed)
	codec.Verify([]byte(testSessionSecret), "garbage")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two log entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Level != zapcore.WarnLevel {
			t.Fatalf("expected warn level, got %s", entry.Level)
		}
		for _, field := range entry.Context {
			if strings.Contains(field.String, "secret-subject") {
				t.Fatalf("log entry disclosed claim content: %v", entry.Context)
			}
		}
	}
	if reason := entries[1].ContextMap()["reason"]; reason != "malformed" {
		t.Fatalf("expected malformed reason, got %v", reason)
	}
}

func TestCodecSignRequiresSecret(t *testing.T) {
	codec := newTestCodec(t, nil, nil)
	if _, err := codec.Sign(nil, map[string]any{"sub": "user-1"}, time.Minute); err == nil {
		t.Fatalf("expected sign to fail without secret")
	}
}

func TestNewCodecRequiresIssuer(t *testing.T) {
	if _, err := NewCodec(CodecConfig{Issuer: "  "}); err != ErrMissingIssuer {
		t.Fatalf("expected ErrMissingIssuer, got %v", err)
	}
}
