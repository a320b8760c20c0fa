package credential

// UnavailableReason classifies why resolve_store_backed_credential could
// not produce a usable secret (spec §4.2).
type UnavailableReason string

const (
	ReasonMissing            UnavailableReason = "missing"
	ReasonRevoked            UnavailableReason = "revoked"
	ReasonExpired            UnavailableReason = "expired"
	ReasonMissingAccessToken UnavailableReason = "missing_access_token"
)

// Unavailable is returned instead of a usable Secret; it never carries
// the record's raw token material.
type Unavailable struct {
	Provider string
	Reason   UnavailableReason
}

func (e *Unavailable) Error() string {
	return "credential: " + e.Provider + " unavailable: " + string(e.Reason)
}

// Secret is a resolved, usable access token.
type Secret struct {
	AccessToken string
	Source      string
}

const sourceCredentialStore = "credential_store"

// RefreshFunc performs a provider token refresh. revoked=true means the
// refresh token itself was rejected by the provider and the record
// should be marked revoked rather than retried. The zero-value
// DefaultRefreshFunc wraps the core's deterministic placeholder.
type RefreshFunc func(provider, refreshToken string, nowUnix int64) (accessToken, newRefreshToken string, expiresUnix int64, revoked bool, err error)

// DefaultRefreshFunc adapts RefreshProviderAccessToken, which never
// fails, to the RefreshFunc shape used by ResolveStoreBackedCredential.
func DefaultRefreshFunc(provider, refreshToken string, nowUnix int64) (string, string, int64, bool, error) {
	access, refresh, expires := RefreshProviderAccessToken(provider, refreshToken, nowUnix)
	return access, refresh, expires, false, nil
}

// PersistFunc saves data back to its backing store after a mutation
// (e.g. a refreshed or revoked token).
type PersistFunc func(*Data) error

// ResolveStoreBackedCredential implements spec §4.2's resolution ladder:
// missing → revoked → expired (attempt refresh for oauth_token, else
// unavailable) → missing access token → usable secret.
func ResolveStoreBackedCredential(data *Data, provider string, nowUnix int64, refresh RefreshFunc, persist PersistFunc) (Secret, error) {
	if refresh == nil {
		refresh = DefaultRefreshFunc
	}

	rec, ok := data.Providers[provider]
	if !ok {
		return Secret{}, &Unavailable{Provider: provider, Reason: ReasonMissing}
	}
	if rec.Revoked {
		return Secret{}, &Unavailable{Provider: provider, Reason: ReasonRevoked}
	}

	if rec.ExpiresUnix != nil && *rec.ExpiresUnix <= nowUnix {
		if rec.AuthMethod == AuthOAuthToken && rec.RefreshToken != "" {
			access, newRefresh, expiresUnix, revoked, err := refresh(provider, rec.RefreshToken, nowUnix)
			if err != nil {
				return Secret{}, err
			}
			if revoked {
				rec.Revoked = true
				data.Providers[provider] = rec
				if persist != nil {
					if perr := persist(data); perr != nil {
						return Secret{}, perr
					}
				}
				return Secret{}, &Unavailable{Provider: provider, Reason: ReasonRevoked}
			}
			rec.AccessToken = access
			rec.RefreshToken = newRefresh
			expires := expiresUnix
			rec.ExpiresUnix = &expires
			data.Providers[provider] = rec
			if persist != nil {
				if perr := persist(data); perr != nil {
					return Secret{}, perr
				}
			}
			return Secret{AccessToken: access, Source: sourceCredentialStore}, nil
		}
		return Secret{}, &Unavailable{Provider: provider, Reason: ReasonExpired}
	}

	if rec.AccessToken == "" {
		return Secret{}, &Unavailable{Provider: provider, Reason: ReasonMissingAccessToken}
	}

	return Secret{AccessToken: rec.AccessToken, Source: sourceCredentialStore}, nil
}
