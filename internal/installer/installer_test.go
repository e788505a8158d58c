package installer_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/installer"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/runner"
	"mac-bootstrap/internal/sshkey"
	"mac-bootstrap/internal/testutil"
)

func quiet(t *testing.T) {
	t.Helper()
	prev := logger.SetOutput(&bytes.Buffer{})
	t.Cleanup(func() { logger.SetOutput(prev) })
}

func notRoot() int { return 501 }

func run(t *testing.T, reg *provision.Registry, r runner.Runner) *provision.Report {
	t.Helper()
	report, err := provision.NewOrchestrator(reg,
		provision.WithPrivilegeCheck(notRoot),
		provision.WithLookPath(r.LookPath),
	).Run(context.Background())
	require.NoError(t, err)
	return report
}

// brewWorld scripts brew so packages stay installed once installed.
func brewWorld(r *testutil.Runner, formulae, casks []string) map[string]bool {
	var mu sync.Mutex
	installed := map[string]bool{}
	script := func(kind, pkg string, install []string) {
		r.OnFunc("brew list "+kind+" "+pkg, func(runner.Options) (runner.Outcome, error) {
			mu.Lock()
			defer mu.Unlock()
			if installed[pkg] {
				return runner.Outcome{}, nil
			}
			return runner.Outcome{ExitCode: 1, Stderr: "Error: No such keg"}, nil
		})
		r.OnFunc("brew "+strings.Join(install, " "), func(runner.Options) (runner.Outcome, error) {
			mu.Lock()
			defer mu.Unlock()
			installed[pkg] = true
			return runner.Outcome{}, nil
		})
	}
	for _, f := range formulae {
		script("--formula", f, []string{"install", f})
	}
	for _, c := range casks {
		script("--cask", c, []string{"install", "--cask", c})
	}
	return installed
}

func TestBuild_SecondRunSkipsEverythingAppliedByTheFirst(t *testing.T) {
	quiet(t)
	home := t.TempDir()
	zshrc := filepath.Join(home, ".zshrc")

	r := testutil.NewRunner().Provide("brew", "defaults", "grep", "conda")
	brewWorld(r, []string{"git", "jq"}, []string{"iterm2"})
	r.OnExit("killall Dock", 0, "")

	condaReady := false
	r.OnFunc("grep -q conda-initialize "+zshrc, func(runner.Options) (runner.Outcome, error) {
		if condaReady {
			return runner.Outcome{}, nil
		}
		return runner.Outcome{ExitCode: 1}, nil
	})
	r.OnFunc("conda init zsh", func(runner.Options) (runner.Outcome, error) {
		condaReady = true
		return runner.Outcome{}, nil
	})

	store := testutil.NewMemoryStore()
	prompter := testutil.NewPrompter(map[string]string{
		"Full name for commits": "Ada Lovelace",
		"Email for commits":     "ada@example.com",
	})
	var clip []string

	cfg := &config.Config{Steps: []config.Step{
		{Name: "directories", Kind: config.KindDirectories, Paths: []string{filepath.Join(home, "Projects"), filepath.Join(home, "Screenshots")}},
		{Name: "zshrc", Kind: config.KindProfile, File: zshrc, Lines: []string{`alias ll="ls -lah"`}},
		{Name: "cli", Kind: config.KindBrew, Formulae: []string{"git", "jq"}, Casks: []string{"iterm2"}},
		{Name: "dock", Kind: config.KindPreferences, Preferences: []config.Preference{
			{Store: config.StoreDefaults, Domain: "com.apple.dock", Key: "autohide", Type: "bool", Value: "true", Restart: "Dock"},
			{Store: config.StoreDefaults, Domain: "com.apple.dock", Key: "tilesize", Type: "int", Value: "48", Restart: "Dock"},
		}},
		{Name: "login-shell", Kind: config.KindPreferences, Preferences: []config.Preference{
			{Store: config.StoreDirectory, Domain: "/Users/ada", Key: "UserShell", Type: "string", Value: "/bin/zsh"},
		}},
		{Name: "git-identity", Kind: config.KindIdentity, File: filepath.Join(home, ".gitconfig")},
		{Name: "ssh-key", Kind: config.KindSSHKey, File: filepath.Join(home, ".ssh", "id_ed25519"), After: []string{"git-identity"}},
		{Name: "conda-init", Kind: config.KindCommand, Check: []string{"grep", "-q", "conda-initialize", zshrc}, Run: []string{"conda", "init", "zsh"}, After: []string{"cli", "zshrc"}},
	}}

	reg, err := installer.Build(cfg, installer.Deps{
		Runner:    r,
		Defaults:  store,
		Directory: store,
		Prompter:  prompter,
		Clipboard: func(s string) error { clip = append(clip, s); return nil },
	})
	require.NoError(t, err)
	assert.True(t, reg.Has("cli:git"))
	assert.True(t, reg.Has("cli:iterm2"))

	first := run(t, reg, r)
	assert.Zero(t, first.Count(provision.StatusFailed), "%v", first.Results())
	assert.Equal(t, reg.Len(), first.Count(provision.StatusApplied))

	second := run(t, reg, r)
	assert.Equal(t, reg.Len(), second.Count(provision.StatusSkipped))

	killalls := 0
	for _, line := range r.Lines() {
		if line == "killall Dock" {
			killalls++
		}
	}
	assert.Equal(t, 1, killalls, "Dock is restarted once for both settings and not again on the second run")
	assert.Equal(t, 3, store.Writes())

	assert.Equal(t, []string{"Full name for commits", "Email for commits"}, prompter.Asked)
	require.Len(t, clip, 1)
	assert.True(t, strings.HasSuffix(clip[0], " ada@example.com"), clip[0])
	assert.DirExists(t, filepath.Join(home, "Screenshots"))
}

func TestBuild_GroupDependencyFailsDependents(t *testing.T) {
	quiet(t)
	r := testutil.NewRunner().Provide("brew", "grep")
	r.OnExit("brew list --formula git", 1, "")
	r.OnExit("brew install git", 1, "")

	cfg := &config.Config{Steps: []config.Step{
		{Name: "cli", Kind: config.KindBrew, Formulae: []string{"git"}},
		{Name: "after-cli", Kind: config.KindCommand, Check: []string{"grep", "-q", "x", "/nonexistent"}, Run: []string{"grep", "x"}, After: []string{"cli"}},
	}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r})
	require.NoError(t, err)

	report := run(t, reg, r)
	status, _ := report.Status("after-cli")
	assert.Equal(t, provision.StatusFailed, status)
	for _, res := range report.Results() {
		if res.Step == "after-cli" {
			assert.ErrorIs(t, res.Err, provision.ErrDependencyMissing)
		}
	}
	assert.NotContains(t, r.Lines(), "grep -q x /nonexistent")
}

func TestBuild_RejectsUnknownAfter(t *testing.T) {
	cfg := &config.Config{Steps: []config.Step{
		{Name: "zshrc", Kind: config.KindProfile, File: "/tmp/x", Lines: []string{"x"}, After: []string{"later"}},
	}}
	_, err := installer.Build(cfg, installer.Deps{})
	assert.Error(t, err)
}

func TestBuild_PolicyApplies(t *testing.T) {
	quiet(t)
	r := testutil.NewRunner().Provide("brew")
	r.OnExit("brew list --formula a", 1, "")
	r.OnExit("brew install a", 1, "")

	cfg := &config.Config{Steps: []config.Step{
		{Name: "cli", Kind: config.KindBrew, Formulae: []string{"a", "b"}, OnFailure: "halt"},
	}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r})
	require.NoError(t, err)

	report, err := provision.NewOrchestrator(reg, provision.WithPrivilegeCheck(notRoot), provision.WithLookPath(r.LookPath)).Run(context.Background())
	assert.ErrorIs(t, err, provision.ErrHalted)
	assert.ErrorIs(t, err, runner.ErrNonZeroExit)
	_, ran := report.Status("cli:b")
	assert.False(t, ran)
}

func TestPreferences_RestartFailureIsOnlyAWarning(t *testing.T) {
	quiet(t)
	r := testutil.NewRunner().Provide("defaults")
	r.OnExit("killall Finder", 1, "No matching processes")
	store := testutil.NewMemoryStore()

	cfg := &config.Config{Steps: []config.Step{
		{Name: "finder", Kind: config.KindPreferences, Preferences: []config.Preference{
			{Store: config.StoreDefaults, Domain: "com.apple.finder", Key: "ShowPathbar", Type: "bool", Value: "true", Restart: "Finder"},
		}},
	}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r, Defaults: store})
	require.NoError(t, err)

	report := run(t, reg, r)
	status, _ := report.Status("finder")
	assert.Equal(t, provision.StatusApplied, status)
}

// installRunner stands in for an installer interpreter: it records the
// downloaded script and creates the marker file.
type installRunner struct {
	creates string
	calls   [][]string
	script  string
	env     []string
}

func (r *installRunner) Run(_ context.Context, name string, args []string, opts runner.Options) (runner.Outcome, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	data, err := os.ReadFile(args[0])
	if err != nil {
		return runner.Outcome{}, err
	}
	r.script = string(data)
	r.env = opts.Env
	return runner.Outcome{}, os.WriteFile(r.creates, nil, 0o644)
}

func (r *installRunner) LookPath(name string) (string, error) { return name, nil }

func TestScript_DownloadsAndRunsInstaller(t *testing.T) {
	quiet(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("#!/bin/sh\necho installing\n"))
	}))
	t.Cleanup(srv.Close)

	marker := filepath.Join(t.TempDir(), ".oh-my-zsh")
	r := &installRunner{creates: marker}
	cfg := &config.Config{Steps: []config.Step{{
		Name: "oh-my-zsh", Kind: config.KindScript, URL: srv.URL + "/install.sh",
		Interpreter: "/bin/sh", Args: []string{"--unattended"}, Env: []string{"RUNZSH=no", "CHSH=no"}, Creates: marker,
	}}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r, HTTP: srv.Client()})
	require.NoError(t, err)

	first := run(t, reg, r)
	status, _ := first.Status("oh-my-zsh")
	require.Equal(t, provision.StatusApplied, status, "%v", first.Results())
	require.Len(t, r.calls, 1)
	assert.Equal(t, "/bin/sh", r.calls[0][0])
	assert.Equal(t, "--unattended", r.calls[0][2])
	assert.Equal(t, "#!/bin/sh\necho installing\n", r.script)
	assert.Equal(t, []string{"RUNZSH=no", "CHSH=no"}, r.env)
	assert.NoFileExists(t, r.calls[0][1], "the downloaded script is removed")

	second := run(t, reg, r)
	status, _ = second.Status("oh-my-zsh")
	assert.Equal(t, provision.StatusSkipped, status)
	assert.Len(t, r.calls, 1)
}

func TestScript_HTTPErrorFails(t *testing.T) {
	quiet(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	r := &installRunner{creates: filepath.Join(t.TempDir(), "x")}
	cfg := &config.Config{Steps: []config.Step{{
		Name: "brew", Kind: config.KindScript, URL: srv.URL + "/install.sh", Interpreter: "/bin/bash", Creates: r.creates,
	}}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r, HTTP: srv.Client()})
	require.NoError(t, err)

	report := run(t, reg, r)
	res := report.Results()[0]
	assert.Equal(t, provision.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "HTTP status 404")
	assert.Empty(t, r.calls)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestArchive_InstallsMatchingFilesFlat(t *testing.T) {
	quiet(t)
	archive := zipArchive(t, map[string]string{
		"JetBrainsMono-2.304/fonts/ttf/JetBrainsMono-Regular.ttf": "regular",
		"JetBrainsMono-2.304/fonts/ttf/JetBrainsMono-Bold.ttf":    "bold",
		"JetBrainsMono-2.304/OFL.txt":                             "license",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "Library", "Fonts")
	r := testutil.NewRunner()
	cfg := &config.Config{Steps: []config.Step{{
		Name: "fonts", Kind: config.KindArchive, URL: srv.URL + "/JetBrainsMono-2.304.zip?download=1",
		Dest: dest, Include: "*.ttf", Creates: filepath.Join(dest, "JetBrainsMono-Regular.ttf"),
	}}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r, HTTP: srv.Client()})
	require.NoError(t, err)

	first := run(t, reg, r)
	status, _ := first.Status("fonts")
	require.Equal(t, provision.StatusApplied, status, "%v", first.Results())

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"JetBrainsMono-Regular.ttf", "JetBrainsMono-Bold.ttf"}, names)

	second := run(t, reg, r)
	status, _ = second.Status("fonts")
	assert.Equal(t, provision.StatusSkipped, status)
}

func TestDirectories_FileInTheWay(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), "Projects")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	r := testutil.NewRunner()

	cfg := &config.Config{Steps: []config.Step{{Name: "dirs", Kind: config.KindDirectories, Paths: []string{path}}}}
	reg, err := installer.Build(cfg, installer.Deps{Runner: r})
	require.NoError(t, err)

	res := run(t, reg, r).Results()[0]
	assert.Equal(t, provision.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "is not a directory")
}

func TestSSHKey_ClipboardFailureIsOnlyAWarning(t *testing.T) {
	quiet(t)
	key := filepath.Join(t.TempDir(), ".ssh", "id_ed25519")
	r := testutil.NewRunner()

	cfg := &config.Config{Steps: []config.Step{{Name: "ssh-key", Kind: config.KindSSHKey, File: key, Comment: "me@laptop"}}}
	reg, err := installer.Build(cfg, installer.Deps{
		Runner:    r,
		Clipboard: func(string) error { return errors.New("no pasteboard") },
	})
	require.NoError(t, err)

	res := run(t, reg, r).Results()[0]
	assert.Equal(t, provision.StatusApplied, res.Status)
	data, err := os.ReadFile(key + ".pub")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(data)), " me@laptop"))
}

func TestSSHKey_PrivateKeyWithoutPublicHalfConverges(t *testing.T) {
	quiet(t)
	key := filepath.Join(t.TempDir(), ".ssh", "id_ed25519")
	generated, err := sshkey.Generate(key, "old@laptop")
	require.NoError(t, err)
	require.NoError(t, os.Remove(sshkey.PublicPath(key)))
	private, err := os.ReadFile(key)
	require.NoError(t, err)

	var copied []string
	r := testutil.NewRunner()
	cfg := &config.Config{Steps: []config.Step{{Name: "ssh-key", Kind: config.KindSSHKey, File: key, Comment: "me@laptop"}}}
	reg, err := installer.Build(cfg, installer.Deps{
		Runner:    r,
		Clipboard: func(s string) error { copied = append(copied, s); return nil },
	})
	require.NoError(t, err)

	first := run(t, reg, r).Results()[0]
	assert.Equal(t, provision.StatusApplied, first.Status, first.Message)
	second := run(t, reg, r).Results()[0]
	assert.Equal(t, provision.StatusSkipped, second.Status)

	after, err := os.ReadFile(key)
	require.NoError(t, err)
	assert.Equal(t, private, after, "the private key is never replaced")

	loaded, err := sshkey.Load(key)
	require.NoError(t, err)
	assert.Equal(t, generated.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, []string{loaded.AuthorizedKey}, copied)
	assert.True(t, strings.HasSuffix(loaded.AuthorizedKey, " me@laptop"))
}

func TestBuild_DefaultConfiguration(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	reg, err := installer.Build(cfg, installer.Deps{Runner: testutil.NewRunner()})
	require.NoError(t, err)

	homebrew, ok := reg.Get("homebrew")
	require.True(t, ok)
	assert.Equal(t, provision.Halt, homebrew.OnFailure)

	git, ok := reg.Get("cli-tools:git")
	require.True(t, ok)
	assert.Equal(t, "cli-tools", git.Group)
	assert.Equal(t, []string{"brew"}, git.Requires)
	assert.Equal(t, []string{"homebrew"}, git.After)
	assert.Equal(t, provision.Continue, git.OnFailure)

	steps := reg.Steps()
	assert.Equal(t, "directories", steps[0].Name)
	assert.Equal(t, "ssh-key", steps[len(steps)-1].Name)
}
