package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/njfio/tau-agent/internal/trust"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, skillsDir, name, body string) string {
	t.Helper()
	dir := filepath.Join(skillsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, skillManifestFilename), []byte(body), 0o644))
	return dir
}

func TestSkillsPruneDryRunReportsWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "# formatter\ndoes formatting")

	rc := &Context{SkillsDir: dir}
	res, err := skillsPruneHandler(context.Background(), rc, "")
	require.NoError(t, err)
	require.Contains(t, res.Text, "dry-run")
	require.Contains(t, res.Text, "+ formatter")

	_, statErr := os.Stat(filepath.Join(dir, skillLockFilename))
	require.True(t, os.IsNotExist(statErr), "dry-run must not write a lockfile")
}

func TestSkillsPruneApplyWritesLockfile(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "# formatter\ndoes formatting")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	lock, err := loadSkillLock(filepath.Join(dir, skillLockFilename))
	require.NoError(t, err)
	require.Contains(t, lock.Entries, "formatter")
}

func TestSkillsPruneDetectsRemovedAndUpdatedSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")
	writeSkill(t, dir, "linter", "v1")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "linter")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "formatter", skillManifestFilename), []byte("v2"), 0o644))

	res, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)
	require.Contains(t, res.Text, "~ formatter")
	require.Contains(t, res.Text, "- linter")

	lock, err := loadSkillLock(filepath.Join(dir, skillLockFilename))
	require.NoError(t, err)
	require.NotContains(t, lock.Entries, "linter")
}

func TestSkillsPruneRejectsMutuallyExclusiveFlags(t *testing.T) {
	rc := &Context{SkillsDir: t.TempDir()}
	_, err := skillsPruneHandler(context.Background(), rc, "--dry-run --apply")
	require.Error(t, err)
}

func TestSkillsPruneRejectsNestedPath(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")
	nested := filepath.Join(dir, "formatter")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, nested)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nested")
}

func TestSkillsVerifyReportsOKForMatchingHash(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	res, err := skillsVerifyHandler(context.Background(), rc, "")
	require.NoError(t, err)
	require.Contains(t, res.Text, "formatter")
	require.Contains(t, res.Text, string(VerifyOK))
}

func TestSkillsVerifyDetectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "formatter", skillManifestFilename), []byte("tampered"), 0o644))

	res, err := skillsVerifyHandler(context.Background(), rc, "")
	require.NoError(t, err)
	require.Contains(t, res.Text, string(VerifyHashMismatch))
}

func TestSkillsVerifyDetectsMissingOnDisk(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "formatter")))

	res, err := skillsVerifyHandler(context.Background(), rc, "")
	require.NoError(t, err)
	require.Contains(t, res.Text, string(VerifyMissingOnDisk))
}

func TestSkillsVerifyChecksTrustRootStatus(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	lockPath := filepath.Join(dir, skillLockFilename)
	lock, err := loadSkillLock(lockPath)
	require.NoError(t, err)
	entry := lock.Entries["formatter"]
	entry.TrustRootID = "signer-1"
	lock.Entries["formatter"] = entry
	require.NoError(t, saveSkillLock(lockPath, lock))

	trustStore, err := trust.Load(filepath.Join(dir, "trust.json"))
	require.NoError(t, err)
	trustStore.Roots["signer-1"] = trust.Root{ID: "signer-1", PublicKey: "abc", Revoked: true}
	require.NoError(t, trust.Save(filepath.Join(dir, "trust.json"), trustStore))

	rc.Trust = trustStore
	res, err := skillsVerifyHandler(context.Background(), rc, "")
	require.NoError(t, err)
	require.Contains(t, res.Text, string(VerifyUntrustedSigner))
}

func TestSkillsVerifyJSONOutput(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "formatter", "v1")

	rc := &Context{SkillsDir: dir}
	_, err := skillsPruneHandler(context.Background(), rc, "--apply")
	require.NoError(t, err)

	res, err := skillsVerifyHandler(context.Background(), rc, "--json")
	require.NoError(t, err)
	require.Contains(t, res.Text, `"name": "formatter"`)
}
