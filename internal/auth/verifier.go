package auth

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimUserID = "userId"
	claimID     = "id"

	bearerPrefix = "Bearer "
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingToken         = errors.New("auth: token required")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrExpiredToken         = errors.New("auth: token expired")
	ErrMissingSubject       = errors.New("auth: numeric subject claim required")
)

// Identity is the normalized caller identity extracted from a verified token.
type Identity struct {
	UserID int64
}

// CredentialVerifierConfig describes how bearer tokens are validated.
type CredentialVerifierConfig struct {
	SigningSecret []byte
	Clock         func() time.Time
}

// CredentialVerifier validates HS256 bearer tokens signed with the process secret.
type CredentialVerifier struct {
	signingSecret []byte
	clock         func() time.Time
}

// NewCredentialVerifier constructs a verifier with the provided configuration.
func NewCredentialVerifier(cfg CredentialVerifierConfig) (*CredentialVerifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CredentialVerifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		clock:         clock,
	}, nil
}

// Verify validates the raw token and returns the identity it carries.
// Every failure is one of ErrMissingToken, ErrInvalidToken (possibly also
// matching ErrExpiredToken) or ErrMissingSubject.
func (v *CredentialVerifier) Verify(rawToken string) (Identity, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpiredToken)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, ok := subjectFromClaims(claims)
	if !ok {
		return Identity{}, ErrMissingSubject
	}
	return Identity{UserID: userID}, nil
}

// VerifyRequest extracts the bearer token from the Authorization header and verifies it.
func (v *CredentialVerifier) VerifyRequest(r *http.Request) (Identity, error) {
	if r == nil {
		return Identity{}, ErrMissingToken
	}
	return v.Verify(BearerToken(r.Header.Get("Authorization")))
}

// BearerToken returns the token portion of an Authorization header value, or
// an empty string when the header does not carry a bearer credential.
func BearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

// subjectFromClaims reads userId, falling back to id only when userId is
// absent or empty (null, false, 0 or ""). A userId that is present but not a
// positive integer rejects the token. Only positive integers are accepted.
func subjectFromClaims(claims jwt.MapClaims) (int64, bool) {
	value, present := claims[claimUserID]
	if !present || emptyClaim(value) {
		value, present = claims[claimID]
		if !present {
			return 0, false
		}
	}
	return positiveInteger(value)
}

func emptyClaim(value interface{}) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case bool:
		return !typed
	case float64:
		return typed == 0
	case string:
		return typed == ""
	default:
		return false
	}
}

// maxSubject is 2^63, the first float64 beyond the int64 range.
const maxSubject = float64(1 << 63)

func positiveInteger(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case float64:
		if typed <= 0 || typed != math.Trunc(typed) || typed >= maxSubject {
			return 0, false
		}
		return int64(typed), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
