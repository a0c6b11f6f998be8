// ABOUTME: Local HS256 token minting for development and unverified token inspection
// ABOUTME: Minted tokens carry the same claims a real identity provider would supply

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned when minting without a signing secret.
var ErrNoSecret = errors.New("a signing secret is required to mint a token")

// MintOptions describes a local development token.
type MintOptions struct {
	Secret          string
	Issuer          string
	Audience        string
	Subject         string
	TenantID        string
	AuthorizedParty string
	ApplicationID   string
	Roles           []string
	TTL             time.Duration
	// Extra claims are merged last and may override the defaults.
	Extra map[string]any
	Now   func() time.Time
}

func (o *MintOptions) applyDefaults() {
	if o.Issuer == "" {
		o.Issuer = "http://localhost:3000"
	}
	if o.Audience == "" {
		o.Audience = "dexi-local"
	}
	if o.Subject == "" {
		o.Subject = "local-user"
	}
	if o.TenantID == "" {
		o.TenantID = "local-tenant"
	}
	if o.AuthorizedParty == "" {
		o.AuthorizedParty = "local-client"
	}
	if o.ApplicationID == "" {
		o.ApplicationID = DefaultApplication
	}
	if len(o.Roles) == 0 {
		o.Roles = []string{"admin"}
	}
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Mint signs an HS256 token from opts.
func Mint(opts MintOptions) (string, error) {
	if opts.Secret == "" {
		return "", ErrNoSecret
	}
	opts.applyDefaults()

	now := opts.Now()
	claims := jwt.MapClaims{
		"iss":           opts.Issuer,
		"aud":           opts.Audience,
		"sub":           opts.Subject,
		"tid":           opts.TenantID,
		"azp":           opts.AuthorizedParty,
		"roles":         opts.Roles,
		"applicationId": opts.ApplicationID,
		"iat":           now.Unix(),
		"exp":           now.Add(opts.TTL).Unix(),
	}
	for k, v := range opts.Extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(opts.Secret))
}

// Decoded is an unverified view of a token.
type Decoded struct {
	Header map[string]any `json:"header"`
	Claims jwt.MapClaims  `json:"payload"`
}

// Inspect decodes token without verifying its signature. For diagnostics only.
func Inspect(token string) (*Decoded, error) {
	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, err
	}
	return &Decoded{Header: parsed.Header, Claims: claims}, nil
}
