package trust

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyMutationsAddRevokeRotate(t *testing.T) {
	s := newStore()

	add, err := ParseAddSpec("key-a=pubkeyA")
	require.NoError(t, err)
	require.NoError(t, ApplyMutations(s, Mutations{Add: []AddMutation{add}}))
	require.Equal(t, "pubkeyA", s.Roots["key-a"].PublicKey)
	require.False(t, s.Roots["key-a"].Revoked)

	require.NoError(t, ApplyMutations(s, Mutations{Revoke: []RevokeMutation{{ID: "key-a"}}}))
	require.True(t, s.Roots["key-a"].Revoked)

	rotate, err := ParseRotateSpec("key-a:key-b=pubkeyB")
	require.NoError(t, err)
	// key-a is already revoked; rotate should still succeed and insert key-b.
	require.NoError(t, ApplyMutations(s, Mutations{Rotate: []RotateMutation{rotate}}))
	require.True(t, s.Roots["key-a"].Revoked)
	require.Equal(t, "key-a", s.Roots["key-b"].RotatedFrom)
	require.Equal(t, "pubkeyB", s.Roots["key-b"].PublicKey)
}

func TestRevokeUnknownIDFails(t *testing.T) {
	s := newStore()
	err := ApplyMutations(s, Mutations{Revoke: []RevokeMutation{{ID: "ghost"}}})
	var unknown *UnknownTrustIDError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "ghost", unknown.ID)
}

func TestRotateUnknownOldIDFails(t *testing.T) {
	s := newStore()
	err := ApplyMutations(s, Mutations{Rotate: []RotateMutation{{OldID: "ghost", NewID: "new", PublicKey: "k"}}})
	var unknown *UnknownTrustIDError
	require.ErrorAs(t, err, &unknown)
}

func TestParseAddSpecRejectsMalformedInput(t *testing.T) {
	_, err := ParseAddSpec("no-equals-sign")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
}

func TestParseRotateSpecRejectsMalformedInput(t *testing.T) {
	_, err := ParseRotateSpec("missing-colon=key")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)

	_, err = ParseRotateSpec("old:new-without-key")
	require.ErrorAs(t, err, &usage)
}

func TestDeriveStatus(t *testing.T) {
	expired := int64(500)
	future := int64(2000)

	require.Equal(t, StatusRevoked, DeriveStatus(Root{Revoked: true, ExpiresUnix: &future}, 1000))
	require.Equal(t, StatusExpired, DeriveStatus(Root{ExpiresUnix: &expired}, 1000))
	require.Equal(t, StatusActive, DeriveStatus(Root{ExpiresUnix: &future}, 1000))
	require.Equal(t, StatusActive, DeriveStatus(Root{}, 1000))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.json")

	s := newStore()
	s.Roots["key-a"] = Root{ID: "key-a", PublicKey: "pub"}
	require.NoError(t, Save(path, s))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "pub", loaded.Roots["key-a"].PublicKey)
}

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	require.Empty(t, s.Roots)
}
