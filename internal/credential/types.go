// Package credential implements the encrypted-at-rest provider and
// integration secret store described in spec §4.2 (C2 Credential
// Store): load/save with a stable schema, optional AEAD encryption of
// secret fields, deterministic token refresh, and credential
// resolution with typed unavailability reasons.
package credential

// EncryptionMode selects how secret fields are serialized.
type EncryptionMode string

const (
	ModeNone  EncryptionMode = "none"
	ModeKeyed EncryptionMode = "keyed"
)

// AuthMethod classifies how a ProviderRecord's access token was obtained.
type AuthMethod string

const (
	AuthAPIKey      AuthMethod = "api_key"
	AuthOAuthToken  AuthMethod = "oauth_token"
	AuthSessionToken AuthMethod = "session_token"
	AuthADC         AuthMethod = "adc"
)

// ProviderRecord is one provider's credential state (spec §3
// ProviderRecord).
type ProviderRecord struct {
	AuthMethod   AuthMethod `json:"auth_method"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresUnix  *int64     `json:"expires_unix,omitempty"`
	Revoked      bool       `json:"revoked"`
}

// IntegrationRecord is one third-party integration's secret state
// (e.g. a webhook signing secret or bot token), stored with the same
// encryption discipline as provider secrets.
type IntegrationRecord struct {
	Secret      string `json:"secret,omitempty"`
	ExpiresUnix *int64 `json:"expires_unix,omitempty"`
	Revoked     bool   `json:"revoked"`
}

// schemaVersion is the current CredentialStore schema version.
const schemaVersion = 1

// Data is the canonical, decrypted-in-memory credential store content
// (spec §3 CredentialStore).
type Data struct {
	SchemaVersion int                          `json:"schema_version"`
	Encryption    EncryptionMode               `json:"encryption"`
	Providers     map[string]ProviderRecord     `json:"providers"`
	Integrations  map[string]IntegrationRecord  `json:"integrations"`
}

func newData(mode EncryptionMode) *Data {
	return &Data{
		SchemaVersion: schemaVersion,
		Encryption:    mode,
		Providers:     make(map[string]ProviderRecord),
		Integrations:  make(map[string]IntegrationRecord),
	}
}
