// ABOUTME: Trusted token issuer configuration and loading from JSON or YAML
// ABOUTME: Each issuer names a JWKS endpoint or shared secret plus tenant and azp restrictions

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidIssuer is returned for issuer entries that cannot verify anything.
var ErrInvalidIssuer = errors.New("invalid issuer config")

// IssuerConfig is one trusted identity provider.
type IssuerConfig struct {
	Issuer     string   `yaml:"issuer" json:"issuer"`
	JWKSURI    string   `yaml:"jwks_uri" json:"jwksUri"`
	Secret     string   `yaml:"secret" json:"secret,omitempty"`
	Audience   string   `yaml:"audience" json:"audience"`
	TenantID   string   `yaml:"tenant_id" json:"tenantId,omitempty"`
	AllowedAZP []string `yaml:"allowed_azp" json:"allowedAzp,omitempty"`
	AppID      string   `yaml:"app_id" json:"appId,omitempty"`
}

// Validate checks that the entry can verify tokens.
func (c IssuerConfig) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidIssuer)
	}
	if c.JWKSURI == "" && c.Secret == "" {
		return fmt.Errorf("%w: %s needs jwks_uri or secret", ErrInvalidIssuer, c.Issuer)
	}
	return nil
}

func (c IssuerConfig) allowsAZP(azp string) bool {
	return slices.Contains(c.AllowedAZP, azp)
}

// ParseIssuersJSON parses a JSON array of issuers using the camelCase keys
// (jwksUri, tenantId, allowedAzp, appId).
func ParseIssuersJSON(data []byte) ([]IssuerConfig, error) {
	var issuers []IssuerConfig
	if err := json.Unmarshal(data, &issuers); err != nil {
		return nil, fmt.Errorf("parsing issuers: %w", err)
	}
	return validateAll(issuers)
}

// LoadIssuersFile reads issuers from path. Files ending in .json use the JSON keys,
// anything else is parsed as YAML with snake_case keys.
func LoadIssuersFile(path string) ([]IssuerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading issuers file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseIssuersJSON(data)
	}
	var issuers []IssuerConfig
	if err := yaml.Unmarshal(data, &issuers); err != nil {
		return nil, fmt.Errorf("parsing issuers file: %w", err)
	}
	return validateAll(issuers)
}

func validateAll(issuers []IssuerConfig) ([]IssuerConfig, error) {
	for i, iss := range issuers {
		if err := iss.Validate(); err != nil {
			return nil, fmt.Errorf("issuer %d: %w", i, err)
		}
	}
	return issuers, nil
}
