package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSignature is returned when the signature, algorithm, or key id does not verify.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired is returned when the token is past its expiry (after leeway).
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the token is not a well-formed three-part token.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidClaims is returned when the signature verifies but a registered claim is unacceptable.
	ErrInvalidClaims = errors.New("token claims invalid")
	// ErrSigningKeyMissing is returned by Encode on a verify-only Manager.
	ErrSigningKeyMissing = errors.New("signing key not configured")
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// SigningMethod defines a public type used by authcore APIs.
//
// SigningMethod names an RSA-family JWS algorithm.
type SigningMethod string

const (
	// MethodRS256 is RSASSA-PKCS1-v1_5 with SHA-256. It is the default.
	MethodRS256 SigningMethod = "RS256"
	// MethodRS384 is RSASSA-PKCS1-v1_5 with SHA-384.
	MethodRS384 SigningMethod = "RS384"
	// MethodRS512 is RSASSA-PKCS1-v1_5 with SHA-512.
	MethodRS512 SigningMethod = "RS512"
	// MethodPS256 is RSASSA-PSS with SHA-256.
	MethodPS256 SigningMethod = "PS256"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    *rsa.PrivateKey
	PublicKey     *rsa.PublicKey
	Issuer        string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
}

// Manager defines a public type used by authcore APIs.
//
// Manager holds no mutable state and is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
	parser *jwt.Parser
}

// Claims is the fixed claim set carried by every token.
//
// Subject holds the string-encoded integer identity id and ID holds the token id.
type Claims struct {
	Type  string `json:"type"`
	Epoch int64  `json:"ver"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager validates the configuration and returns an error when the algorithm is
// unsupported, no verification key is available, or the key pair does not match.
func NewManager(cfg Config) (*Manager, error) {
	cfg.SigningMethod = SigningMethod(strings.ToUpper(strings.TrimSpace(string(cfg.SigningMethod))))
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodRS256
	}
	method, err := resolveMethod(cfg.SigningMethod)
	if err != nil {
		return nil, err
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	if cfg.PublicKey == nil && cfg.PrivateKey != nil {
		cfg.PublicKey = &cfg.PrivateKey.PublicKey
	}
	if cfg.PublicKey == nil {
		return nil, errors.New("rsa public key is required")
	}
	if cfg.PrivateKey != nil && !cfg.PrivateKey.PublicKey.Equal(cfg.PublicKey) {
		return nil, errors.New("public key does not match private key")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	return &Manager{config: cfg, method: method, parser: jwt.NewParser(options...)}, nil
}

// Method returns the configured algorithm.
func (m *Manager) Method() SigningMethod { return m.config.SigningMethod }

// CanSign reports whether the manager holds a private key.
func (m *Manager) CanSign() bool { return m.config.PrivateKey != nil }

// Encode describes the encode operation and its observable behavior.
//
// Encode stamps iat and exp (now + ttl) on claims, plus the configured issuer, and signs
// the result. It returns the compact token and the lifetime in whole seconds.
func (m *Manager) Encode(claims Claims, ttl time.Duration) (string, int64, error) {
	if m.config.PrivateKey == nil {
		return "", 0, ErrSigningKeyMissing
	}
	if ttl <= 0 {
		return "", 0, errors.New("invalid TTL")
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.config.PrivateKey)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}
	return signed, int64(ttl / time.Second), nil
}

// Decode describes the decode operation and its observable behavior.
//
// Decode verifies the signature with the public key and checks expiry. Failures wrap
// exactly one of ErrMalformed, ErrInvalidSignature, ErrExpired, or ErrInvalidClaims.
func (m *Manager) Decode(tokenStr string) (*Claims, error) {
	token, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.config.PublicKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, jwt.ErrTokenInvalidClaims)
	}
	if claims.IssuedAt != nil && m.config.MaxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidClaims)
		}
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}

func resolveMethod(m SigningMethod) (jwt.SigningMethod, error) {
	switch m {
	case MethodRS256:
		return jwt.SigningMethodRS256, nil
	case MethodRS384:
		return jwt.SigningMethodRS384, nil
	case MethodRS512:
		return jwt.SigningMethodRS512, nil
	case MethodPS256:
		return jwt.SigningMethodPS256, nil
	default:
		return nil, fmt.Errorf("unsupported signing method %q", m)
	}
}
