// Package auth is the identity provider: the token authority issuing and
// verifying access/refresh JWTs, bcrypt password handling, the login
// sliding-window rate limiter, and the /auth HTTP surface.
package auth

import (
	"time"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"

	"github.com/canteenhq/canteen"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the verified view of a token the services care about.
type Claims struct {
	Subject   string
	StudentID string
	IsAdmin   bool
	Type      string
	JTI       string
}

// TokenAuthority issues and validates the platform's signed tokens.
// Stateless: there is no revocation list, expiry is the only invalidation.
type TokenAuthority struct {
	secret     []byte
	alg        jwa.SignatureAlgorithm
	accessTTL  time.Duration
	refreshTTL time.Duration

	// now is stubbed in tests.
	now func() time.Time
}

// TokenConfig carries the signing settings.
type TokenConfig struct {
	Secret     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenConfigFromEnv reads the JWT settings (secret, algorithm, TTLs).
func TokenConfigFromEnv() TokenConfig {
	return TokenConfig{
		Secret:     canteen.EnvString("CANTEEN_JWT_SECRET", "dev-secret-change-me"),
		Algorithm:  canteen.EnvString("CANTEEN_JWT_ALGORITHM", "HS256"),
		AccessTTL:  time.Duration(canteen.EnvInt("CANTEEN_JWT_ACCESS_TTL_MINUTES", 30)) * time.Minute,
		RefreshTTL: time.Duration(canteen.EnvInt("CANTEEN_JWT_REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,
	}
}

// NewTokenAuthority builds the authority from config.
func NewTokenAuthority(config TokenConfig) *TokenAuthority {
	alg := jwa.SignatureAlgorithm(config.Algorithm)
	if alg == "" {
		alg = jwa.HS256
	}
	return &TokenAuthority{
		secret:     []byte(config.Secret),
		alg:        alg,
		accessTTL:  config.AccessTTL,
		refreshTTL: config.RefreshTTL,
		now:        time.Now,
	}
}

// AccessTTL exposes the access token lifetime for the login response's
// expires_in field.
func (a *TokenAuthority) AccessTTL() time.Duration {
	return a.accessTTL
}

// IssueAccess mints an access token carrying the principal claims.
func (a *TokenAuthority) IssueAccess(subject, studentID string, isAdmin bool) (string, error) {
	return a.issue(subject, TokenTypeAccess, a.accessTTL, map[string]interface{}{
		"student_id": studentID,
		"is_admin":   isAdmin,
	})
}

// IssueRefresh mints a refresh token carrying only the subject.
func (a *TokenAuthority) IssueRefresh(subject string) (string, error) {
	return a.issue(subject, TokenTypeRefresh, a.refreshTTL, nil)
}

func (a *TokenAuthority) issue(subject, tokenType string, ttl time.Duration, extra map[string]interface{}) (string, error) {
	now := a.now().UTC()
	t := jwt.New()
	claims := map[string]interface{}{
		jwt.SubjectKey:    subject,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(ttl),
		jwt.JwtIDKey:      canteen.NewUUID().String(),
		"type":            tokenType,
	}
	for k, v := range extra {
		claims[k] = v
	}
	for k, v := range claims {
		if err := t.Set(k, v); err != nil {
			return "", err
		}
	}
	signed, err := jwt.Sign(t, a.alg, a.secret)
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify checks signature, expiry and token type, returning the claims.
// The expected type matters: the refresh endpoint must reject access tokens
// and protected routes must reject refresh tokens.
func (a *TokenAuthority) Verify(token string, expectedType string) (Claims, error) {
	t, err := jwt.Parse([]byte(token),
		jwt.WithVerify(a.alg, a.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(a.now)),
	)
	if err != nil {
		return Claims{}, canteen.NewError(canteen.Unauthenticated, "Invalid or expired JWT: %v", err)
	}

	claims := Claims{Subject: t.Subject(), JTI: t.JwtID()}
	if v, ok := t.Get("type"); ok {
		claims.Type, _ = v.(string)
	}
	if claims.Type != expectedType {
		return Claims{}, canteen.NewError(canteen.Unauthenticated,
			"Invalid token type: expected %s", expectedType)
	}
	if v, ok := t.Get("student_id"); ok {
		claims.StudentID, _ = v.(string)
	}
	if v, ok := t.Get("is_admin"); ok {
		claims.IsAdmin, _ = v.(bool)
	}
	if claims.StudentID == "" {
		claims.StudentID = claims.Subject
	}
	if claims.Subject == "" {
		return Claims{}, canteen.NewError(canteen.Unauthenticated, "Token carries no subject")
	}
	return claims, nil
}

// WithClock overrides the authority's time source. Test hook.
func (a *TokenAuthority) WithClock(now func() time.Time) *TokenAuthority {
	a.now = now
	return a
}
