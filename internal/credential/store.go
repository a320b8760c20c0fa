package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// onDiskData mirrors Data's JSON shape but lets Integrations be absent
// entirely, so legacy files upgrade to an empty map instead of failing
// to parse.
type onDiskData struct {
	SchemaVersion int                          `json:"schema_version"`
	Encryption    EncryptionMode               `json:"encryption"`
	Providers     map[string]ProviderRecord    `json:"providers"`
	Integrations  map[string]IntegrationRecord `json:"integrations,omitempty"`
}

// Load reads the credential store at path and decrypts any secret
// fields using key. configuredMode is the mode the caller expects; a
// store on disk with a different recorded Encryption is still read
// using key (secrets carry their own enc:v1: marker, so mixed-mode
// files from a prior configuration change still decrypt correctly).
func Load(path string, configuredMode EncryptionMode, key []byte) (*Data, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newData(configuredMode), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential: read %s: %w", path, err)
	}

	var disk onDiskData
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, fmt.Errorf("credential: parse %s: %w", path, err)
	}

	data := &Data{
		SchemaVersion: disk.SchemaVersion,
		Encryption:    disk.Encryption,
		Providers:     make(map[string]ProviderRecord, len(disk.Providers)),
		Integrations:  make(map[string]IntegrationRecord, len(disk.Integrations)),
	}
	if data.SchemaVersion == 0 {
		data.SchemaVersion = schemaVersion
	}
	if data.Encryption == "" {
		data.Encryption = configuredMode
	}

	for name, rec := range disk.Providers {
		access, err := DecryptSecret(rec.AccessToken, key)
		if err != nil {
			return nil, fmt.Errorf("credential: decrypt provider %q access token: %w", name, err)
		}
		refresh, err := DecryptSecret(rec.RefreshToken, key)
		if err != nil {
			return nil, fmt.Errorf("credential: decrypt provider %q refresh token: %w", name, err)
		}
		rec.AccessToken = access
		rec.RefreshToken = refresh
		data.Providers[name] = rec
	}
	for name, rec := range disk.Integrations {
		secret, err := DecryptSecret(rec.Secret, key)
		if err != nil {
			return nil, fmt.Errorf("credential: decrypt integration %q secret: %w", name, err)
		}
		rec.Secret = secret
		data.Integrations[name] = rec
	}

	return data, nil
}

// Save writes data to path as pretty-printed JSON, encrypting every
// secret field with data.Encryption, using an atomic temp-file-then-
// rename so a crash mid-write never leaves a truncated store.
func Save(path string, data *Data, key []byte) error {
	disk := onDiskData{
		SchemaVersion: data.SchemaVersion,
		Encryption:    data.Encryption,
		Providers:     make(map[string]ProviderRecord, len(data.Providers)),
		Integrations:  make(map[string]IntegrationRecord, len(data.Integrations)),
	}
	if disk.SchemaVersion == 0 {
		disk.SchemaVersion = schemaVersion
	}

	for name, rec := range data.Providers {
		access, err := EncryptSecret(rec.AccessToken, data.Encryption, key)
		if err != nil {
			return fmt.Errorf("credential: encrypt provider %q access token: %w", name, err)
		}
		refresh, err := EncryptSecret(rec.RefreshToken, data.Encryption, key)
		if err != nil {
			return fmt.Errorf("credential: encrypt provider %q refresh token: %w", name, err)
		}
		rec.AccessToken = access
		rec.RefreshToken = refresh
		disk.Providers[name] = rec
	}
	for name, rec := range data.Integrations {
		secret, err := EncryptSecret(rec.Secret, data.Encryption, key)
		if err != nil {
			return fmt.Errorf("credential: encrypt integration %q secret: %w", name, err)
		}
		rec.Secret = secret
		disk.Integrations[name] = rec
	}

	body, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("credential: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("credential: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
