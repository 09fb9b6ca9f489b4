package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Config configures the PASETO verifier.
type Config struct {
	// Issuer the identity service signs tokens with.
	Issuer string
	// PublicKeyHex is the identity service's Ed25519 public key (hex).
	PublicKeyHex string
	// ClockSkew tolerated during validation.
	ClockSkew time.Duration
}

type pasetoV4PublicVerifier struct {
	issuer    string
	clockSkew time.Duration
	public    paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicVerifier builds a TokenVerifier for PASETO v4.public
// access tokens. This server only holds the public half of the keypair;
// signing stays with the identity service.
func NewPasetoV4PublicVerifier(cfg Config) (TokenVerifier, error) {
	if cfg.Issuer == "" || cfg.PublicKeyHex == "" {
		return nil, ErrConfig
	}
	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(cfg.PublicKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicVerifier{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		public:    public,
	}, nil
}

func (v *pasetoV4PublicVerifier) Verify(token string, now time.Time) (AccessClaims, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	// Clock-skew tolerance:
	// Validate slightly in the future to avoid failing "nbf" when clocks
	// differ. This also makes expiration checks slightly stricter.
	validNow := now.Add(v.clockSkew)

	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(v.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(v.public, token, nil)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}

	iss, _ := parsed.GetIssuer()
	exp, _ := parsed.GetExpiration()
	iat, _ := parsed.GetIssuedAt()

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	return AccessClaims{
		UserID:    uid,
		ExpiresAt: exp,
		IssuedAt:  iat,
		Issuer:    iss,
	}, nil
}
