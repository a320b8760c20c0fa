package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// refreshWindowSeconds is how far past now a refreshed token's
// expires_unix is set, per spec §4.2.
const refreshWindowSeconds = 3600

// RefreshProviderAccessToken performs the core's deterministic,
// provider-agnostic token refresh: a real provider plug-in may override
// this with an actual OAuth refresh call, but the contract every caller
// can rely on is this placeholder derivation (spec §4.2).
func RefreshProviderAccessToken(provider, refreshToken string, nowUnix int64) (accessToken, newRefreshToken string, expiresUnix int64) {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", provider, refreshToken, nowUnix)))
	digest := hex.EncodeToString(h[:])[:16]
	accessToken = fmt.Sprintf("%s_access_%s", provider, digest)
	newRefreshToken = fmt.Sprintf("%s_refresh_%s", provider, digest)
	expiresUnix = nowUnix + refreshWindowSeconds
	return accessToken, newRefreshToken, expiresUnix
}
