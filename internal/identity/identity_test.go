package identity_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"mac-bootstrap/internal/identity"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/testutil"
)

const (
	nameLabel  = "Full name for commits"
	emailLabel = "Email for commits"
)

func quiet(t *testing.T) {
	prev := logger.SetOutput(&bytes.Buffer{})
	t.Cleanup(func() { logger.SetOutput(prev) })
}

func TestEnsure_NoFileWritesPromptedValuesVerbatim(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	p := testutil.NewPrompter(map[string]string{
		nameLabel:  "Ada Lovelace",
		emailLabel: "ada+commits@example.com",
	})

	id, err := identity.Ensure(path, p)
	require.NoError(t, err)
	assert.Equal(t, []string{nameLabel, emailLabel}, p.Asked)
	assert.Equal(t, identity.Identity{Name: "Ada Lovelace", Email: "ada+commits@example.com"}, id)

	loaded, err := identity.Load(path)
	require.NoError(t, err)
	assert.Equal(t, id, loaded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[user]")
	assert.Contains(t, string(raw), "Ada Lovelace")
	assert.Contains(t, string(raw), "ada+commits@example.com")
}

func TestEnsure_OnlyMissingEmailIsPrompted(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	existing := "[user]\n\tname = Grace Hopper\n\tsigningkey = ABC123\n[core]\n\teditor = vim\n[alias]\n\tco = checkout\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))
	p := testutil.NewPrompter(map[string]string{emailLabel: "grace@example.com"})

	id, err := identity.Ensure(path, p)
	require.NoError(t, err)
	assert.Equal(t, []string{emailLabel}, p.Asked)
	assert.Equal(t, "Grace Hopper", id.Name)
	assert.Equal(t, "grace@example.com", id.Email)

	cfg, err := ini.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", cfg.Section("user").Key("name").String())
	assert.Equal(t, "ABC123", cfg.Section("user").Key("signingkey").String())
	assert.Equal(t, "vim", cfg.Section("core").Key("editor").String())
	assert.Equal(t, "checkout", cfg.Section("alias").Key("co").String())
}

func TestEnsure_CompleteIdentityPromptsNothing(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	existing := "[user]\n\tname = \"Linus T\"\n\temail = linus@example.com\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))
	p := testutil.NewPrompter(nil)

	id, err := identity.Ensure(path, p)
	require.NoError(t, err)
	assert.Empty(t, p.Asked)
	assert.Equal(t, identity.Identity{Name: "Linus T", Email: "linus@example.com"}, id)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, existing, string(raw), "a complete identity must not rewrite the file")
}

func TestEnsure_PromptErrorLeavesFileAlone(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	p := testutil.NewPrompter(map[string]string{nameLabel: "Someone"})

	_, err := identity.Ensure(path, p)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestLoad_MissingFile(t *testing.T) {
	id, err := identity.Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.False(t, id.Complete())
}

func TestEnsure_PreservesQuotedValues(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	existing := "[alias]\n\tl = \"!f() { git log; }; f\"\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))
	p := testutil.NewPrompter(map[string]string{nameLabel: "N", emailLabel: "e@example.com"})

	_, err := identity.Ensure(path, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"!f() { git log; }; f"`)
}

func TestEnsure_KeepsRepeatedKeysAndResets(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	existing := "# managed by hand\n" +
		"[credential]\n\thelper =\n\thelper = osxkeychain\n" +
		"[user]\n\tname = Grace Hopper\n" +
		"[remote \"origin\"]\n" +
		"\turl = git@github.com:grace/cobol.git\n" +
		"\tfetch = +refs/heads/*:refs/remotes/origin/*\n" +
		"\tfetch = +refs/pull/*/head:refs/remotes/origin/pr/*\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))
	p := testutil.NewPrompter(map[string]string{emailLabel: "grace@example.com"})

	_, err := identity.Ensure(path, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	want := strings.Replace(existing, "[user]\n", "[user]\n\temail = grace@example.com\n", 1)
	assert.Equal(t, want, string(raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsure_AppendsUserSectionWhenAbsent(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	require.NoError(t, os.WriteFile(path, []byte("[core]\n\teditor = vim"), 0o644))
	p := testutil.NewPrompter(map[string]string{nameLabel: "Ada", emailLabel: "ada@example.com"})

	_, err := identity.Ensure(path, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[core]\n\teditor = vim\n[user]\n\tname = Ada\n\temail = ada@example.com\n", string(raw))
}

func TestEnsure_QuotesValuesGitWouldCut(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), ".gitconfig")
	p := testutil.NewPrompter(map[string]string{nameLabel: "Team #1", emailLabel: "team@example.com"})

	_, err := identity.Ensure(path, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\tname = \"Team #1\"\n")

	id, err := identity.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Team #1", id.Name)
}
