package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalidConfig is returned by NewManager for unusable settings.
	ErrInvalidConfig = errors.New("invalid jwt configuration")
	// ErrMissingSubject is returned when issuing a token without a user id.
	ErrMissingSubject = errors.New("token subject required")
	// ErrSigningDisabled is returned by CreateAccess on a verify-only
	// manager.
	ErrSigningDisabled = errors.New("token signing key not configured")
	// ErrTokenRejected wraps every ParseAccess failure.
	ErrTokenRejected = errors.New("access token rejected")
)

// Config configures a [Manager].
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or the Ed25519 private key
	// (raw or PEM). It may be empty for a verify-only ed25519 manager.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// KeyID is written to the kid header of issued tokens.
	KeyID string
	// VerifyKeys maps kid to public key. When set, every token must name
	// one of them.
	VerifyKeys map[string][]byte
	// Clock overrides time.Now for issuance and validation.
	Clock func() time.Time
}

// Manager issues and verifies access tokens.
type Manager struct {
	ttl      time.Duration
	issuer   string
	audience string
	kid      string
	clock    func() time.Time

	method  jwt.SigningMethod
	signKey any
	// verifyKey is used when byKid is empty.
	verifyKey any
	byKid     map[string]any
	parser    *jwt.Parser
}

// Identity is the actor an access token is issued for.
type Identity struct {
	UserID    string
	Username  string
	Role      string
	SessionID string
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UID      string `json:"uid"`
	Username string `json:"usr,omitempty"`
	Role     string `json:"role"`
	SID      string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the actor described by c.
func (c *AccessClaims) Identity() Identity {
	return Identity{
		UserID:    c.UID,
		Username:  c.Username,
		Role:      c.Role,
		SessionID: c.SID,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// NewManager validates cfg, resolves its keys and returns a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, invalid("access ttl must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, invalid("leeway must be within [0, 2m]")
	}

	m := &Manager{
		ttl:      cfg.AccessTTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		kid:      strings.TrimSpace(cfg.KeyID),
		clock:    cfg.Clock,
	}
	if m.clock == nil {
		m.clock = time.Now
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		err = m.useHMAC(cfg)
	case MethodEd25519:
		err = m.useEd25519(cfg)
	default:
		err = invalid("unsupported signing method %q", cfg.SigningMethod)
	}
	if err != nil {
		return nil, err
	}
	if m.kid != "" && len(m.byKid) > 0 {
		if _, ok := m.byKid[m.kid]; !ok {
			return nil, invalid("KeyID %q is not present in VerifyKeys", m.kid)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.clock),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

func (m *Manager) useHMAC(cfg Config) error {
	if len(cfg.PrivateKey) < 32 {
		return invalid("hs256 requires a key of at least 32 bytes")
	}
	secret := append([]byte(nil), cfg.PrivateKey...)
	m.method = jwt.SigningMethodHS256
	m.signKey = secret
	m.verifyKey = secret
	if len(cfg.VerifyKeys) > 0 {
		m.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return invalid("verify key map contains empty kid")
			}
			m.byKid[kid] = append([]byte(nil), key...)
		}
	}
	return nil
}

func (m *Manager) useEd25519(cfg Config) error {
	m.method = jwt.SigningMethodEdDSA
	if len(cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return invalid("%v", err)
		}
		m.signKey = priv
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return invalid("%v", err)
		}
		m.verifyKey = pub
	}
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return invalid("verify key map contains empty kid")
		}
		pub, err := parseEdPublicKey(key)
		if err != nil {
			return invalid("verify key %q: %v", kid, err)
		}
		if m.byKid == nil {
			m.byKid = make(map[string]any, len(cfg.VerifyKeys))
		}
		m.byKid[kid] = pub
	}
	if m.verifyKey == nil && m.signKey != nil {
		m.verifyKey = m.signKey.(ed25519.PrivateKey).Public()
	}
	if m.verifyKey == nil && len(m.byKid) == 0 {
		return invalid("ed25519 requires a public key or verify key set")
	}
	return nil
}

// CreateAccess signs an access token for id.
func (m *Manager) CreateAccess(id Identity) (string, error) {
	if id.UserID == "" {
		return "", ErrMissingSubject
	}
	if m.signKey == nil {
		return "", ErrSigningDisabled
	}

	now := m.clock()
	claims := AccessClaims{
		UID:      id.UserID,
		Username: id.Username,
		Role:     id.Role,
		SID:      id.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	return token.SignedString(m.signKey)
}

// ParseAccess verifies tokenStr and returns its claims. The signature,
// algorithm, exp, iat, issuer and audience are all enforced, and a token
// without a uid claim is rejected. Every failure wraps [ErrTokenRejected].
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if !token.Valid {
		return nil, ErrTokenRejected
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat", ErrTokenRejected)
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrTokenRejected)
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if len(m.byKid) > 0 {
		key, ok := m.byKid[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}
	if m.kid != "" && kid != m.kid {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("pem block is not an ed25519 private key")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("pem block is not an ed25519 public key")
	}
	return pub, nil
}
