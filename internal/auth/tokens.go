package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/loyalty-api/internal/common"
)

// Tokens signs and validates HS256 access tokens carrying the user id as subject.
type Tokens struct {
	Secret    []byte
	Issuer    string
	Audience  string
	TTL       time.Duration
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	Now       func() time.Time
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Tokens) algorithm() jwa.SignatureAlgorithm {
	if t.Algorithm != "" {
		return t.Algorithm
	}
	return jwa.HS256
}

// Sign issues a new access token for the given user identifier.
func (t Tokens) Sign(userID string) (string, time.Time, error) {
	if len(t.Secret) == 0 {
		return "", time.Time{}, errors.New("auth: secret not configured")
	}
	now := t.now()
	ttl := t.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expiresAt := now.Add(ttl)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(t.Issuer).
		Audience([]string{t.Audience}).
		IssuedAt(now).
		NotBefore(now.Add(-t.ClockSkew)).
		Expiration(expiresAt)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(t.algorithm(), t.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Parse validates a raw token and returns the subject user identifier.
func (t Tokens) Parse(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", common.NewAppError(common.CodeUnauthorized, "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if algorithm != t.algorithm() {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, t.Secret))
	if err != nil {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(t.now)),
	}
	if t.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(t.ClockSkew))
	}
	if t.Issuer != "" {
		options = append(options, jwt.WithIssuer(t.Issuer))
	}
	if t.Audience != "" {
		options = append(options, jwt.WithAudience(t.Audience))
	}
	if err := jwt.Validate(parsed, options...); err != nil {
		return "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
