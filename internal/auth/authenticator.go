// ABOUTME: Bearer token authentication against multiple trusted issuers
// ABOUTME: Selects an issuer by unverified iss, verifies cryptographically, then derives UserContext

package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/identity"
	"github.com/2389/dexi-gateway/internal/policy"
)

// DefaultApplication is the application scope used when neither the issuer nor the
// token names one.
const DefaultApplication = "nexus"

var (
	hmacMethods       = []string{"HS256", "HS384", "HS512"}
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
)

// Config configures an Authenticator.
type Config struct {
	// DevMode trusts x-dev-* headers instead of verifying tokens. Never enable outside
	// local development.
	DevMode bool
	DevUser string
	DevRole policy.Role

	DefaultApplication string

	// Global single-issuer settings.
	Secret   string
	Issuer   string
	Audience string
	JWKSURI  string

	// Issuers is the explicit trust list.
	Issuers []IssuerConfig
}

// Authenticator turns an Authorization header into a UserContext.
type Authenticator struct {
	cfg    Config
	keys   *keyCache
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator. ctx bounds background JWKS refreshes.
func NewAuthenticator(ctx context.Context, cfg Config, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultApplication == "" {
		cfg.DefaultApplication = DefaultApplication
	}
	if cfg.DevUser == "" {
		cfg.DevUser = "dev-user"
	}
	if cfg.DevRole == "" {
		cfg.DevRole = policy.Admin
	}
	if cfg.DevMode {
		logger.Warn("development auth enabled: x-dev-* headers are trusted without verification")
	}
	return &Authenticator{
		cfg:    cfg,
		keys:   newKeyCache(ctx, logger),
		logger: logger,
	}
}

// DevMode reports whether development headers are trusted.
func (a *Authenticator) DevMode() bool {
	return a.cfg.DevMode
}

// AuthenticateRequest authenticates r from dev headers or its Authorization header.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (identity.UserContext, error) {
	if a.cfg.DevMode {
		return a.devUser(r.Header), nil
	}
	return a.AuthenticateHeader(r.Context(), r.Header.Get("Authorization"))
}

func (a *Authenticator) devUser(h http.Header) identity.UserContext {
	role := a.cfg.DevRole
	if v := h.Get("x-dev-role"); v != "" {
		role = policy.NormalizeRole(v)
	}
	return identity.UserContext{
		UserID:        firstNonEmpty(h.Get("x-dev-user"), a.cfg.DevUser),
		Role:          role,
		ApplicationID: firstNonEmpty(h.Get("x-dev-app"), a.cfg.DefaultApplication),
	}
}

// AuthenticateHeader authenticates an Authorization header value.
func (a *Authenticator) AuthenticateHeader(ctx context.Context, header string) (identity.UserContext, error) {
	token, errMsg := extractBearerToken(header)
	switch {
	case errMsg == errMissingHeader:
		return identity.UserContext{}, apperr.New(apperr.CodeAuthMissing, "Missing authorization header")
	case errMsg != "":
		return identity.UserContext{}, apperr.New(apperr.CodeAuthInvalid, "Invalid authorization header format")
	}
	return a.AuthenticateToken(ctx, token)
}

// AuthenticateToken verifies a raw JWT and derives the caller identity.
func (a *Authenticator) AuthenticateToken(_ context.Context, token string) (identity.UserContext, error) {
	if len(a.cfg.Issuers) == 0 && a.cfg.JWKSURI == "" {
		return a.verifyWithSecret(token)
	}

	iss, err := unverifiedIssuer(token)
	if err != nil {
		return identity.UserContext{}, apperr.Wrap(apperr.CodeAuthInvalid, err, "Invalid token: "+err.Error())
	}
	cfg, ok := a.selectIssuer(iss)
	if !ok {
		a.logger.Warn("token from unknown issuer", "iss", iss)
		return identity.UserContext{}, apperr.New(apperr.CodeAuthInvalid, "Unknown token issuer")
	}

	claims, err := a.verify(token, cfg)
	if err != nil {
		return identity.UserContext{}, err
	}

	if cfg.TenantID != "" && claimString(claims, "tid") != cfg.TenantID {
		return identity.UserContext{}, apperr.New(apperr.CodeAuthInvalid, "Invalid tenant")
	}
	if len(cfg.AllowedAZP) > 0 {
		azp := firstNonEmpty(claimString(claims, "azp"), claimString(claims, "appid"))
		if azp == "" || !cfg.allowsAZP(azp) {
			return identity.UserContext{}, apperr.New(apperr.CodeAuthInvalid, "Invalid authorized party")
		}
	}

	return a.userFromClaims(claims, cfg.AppID), nil
}

func (a *Authenticator) verifyWithSecret(token string) (identity.UserContext, error) {
	if a.cfg.Secret == "" {
		return identity.UserContext{}, apperr.New(apperr.CodeAuthUnconfigured, "JWT secret not configured")
	}
	claims, err := a.verify(token, IssuerConfig{
		Issuer:   a.cfg.Issuer,
		Audience: a.cfg.Audience,
		Secret:   a.cfg.Secret,
	})
	if err != nil {
		return identity.UserContext{}, err
	}
	return a.userFromClaims(claims, ""), nil
}

// selectIssuer matches iss against the trust list. The global issuer is only a fallback
// when no explicit list exists.
func (a *Authenticator) selectIssuer(iss string) (IssuerConfig, bool) {
	for _, cfg := range a.cfg.Issuers {
		if cfg.Issuer == iss {
			return cfg, true
		}
	}
	if len(a.cfg.Issuers) == 0 && a.cfg.JWKSURI != "" {
		return IssuerConfig{
			Issuer:   a.cfg.Issuer,
			JWKSURI:  a.cfg.JWKSURI,
			Audience: a.cfg.Audience,
		}, true
	}
	return IssuerConfig{}, false
}

func (a *Authenticator) verify(token string, cfg IssuerConfig) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var keyFunc jwt.Keyfunc
	if cfg.JWKSURI != "" {
		kf, err := a.keys.keyfunc(cfg.JWKSURI)
		if err != nil {
			a.logger.Error("JWKS unavailable", "jwks_uri", cfg.JWKSURI, "error", err)
			return nil, apperr.Wrap(apperr.CodeAuthInvalid, err, "Invalid token: signing keys unavailable")
		}
		keyFunc = kf
		opts = append(opts, jwt.WithValidMethods(asymmetricMethods))
	} else {
		secret := []byte(cfg.Secret)
		keyFunc = func(*jwt.Token) (any, error) { return secret, nil }
		opts = append(opts, jwt.WithValidMethods(hmacMethods))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, keyFunc); err != nil {
		return nil, apperr.Wrap(apperr.CodeAuthInvalid, err, "Invalid token: "+err.Error())
	}
	return claims, nil
}

func (a *Authenticator) userFromClaims(claims jwt.MapClaims, appOverride string) identity.UserContext {
	var role policy.Role
	if explicit := claimString(claims, "role"); explicit != "" {
		role = policy.NormalizeRole(explicit)
	} else {
		groups := claimStrings(claims, "cognito:groups")
		groups = append(groups, claimStrings(claims, "groups")...)
		groups = append(groups, claimStrings(claims, "roles")...)
		role = policy.RoleFromGroups(groups)
	}

	return identity.UserContext{
		UserID: firstNonEmpty(claimString(claims, "sub"), claimString(claims, "userId"), "unknown"),
		Role:   role,
		ApplicationID: firstNonEmpty(
			appOverride,
			claimString(claims, "applicationId"),
			claimString(claims, "azp"),
			a.cfg.DefaultApplication,
		),
		SessionID:    claimString(claims, "sessionId"),
		CampaignID:   claimString(claims, "campaignId"),
		CurrentRoute: claimString(claims, "currentRoute"),
	}
}

func unverifiedIssuer(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	return claims.GetIssuer()
}
