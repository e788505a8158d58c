// Package identity manages the version-control identity stored in the
// [user] section of ~/.gitconfig.
//
// The file is parsed with ini but never re-serialised: missing keys are
// inserted as new lines so repeated keys, empty resets such as
// "helper =", comments and layout all stay as the user wrote them.
package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/prompt"
)

const section = "user"

// userHeader matches the [user] section header, which git treats case-insensitively.
var userHeader = regexp.MustCompile(`(?i)^\s*\[\s*user\s*\]`)

// Identity is the author identity used for commits.
type Identity struct {
	Name  string
	Email string
}

// Complete reports whether both fields are set.
func (i Identity) Complete() bool {
	return i.Name != "" && i.Email != ""
}

// field is a key of the [user] section and the prompt used when it is missing.
type field struct {
	key   string
	label string
}

var fields = []field{
	{key: "name", label: "Full name for commits"},
	{key: "email", label: "Email for commits"},
}

// Load reads the identity from path. A missing file yields an empty Identity.
func Load(path string) (Identity, error) {
	cfg, err := load(path)
	if err != nil {
		return Identity{}, err
	}
	sec := cfg.Section(section)
	return Identity{Name: value(sec, "name"), Email: value(sec, "email")}, nil
}

// Ensure prompts only for the fields missing from path and adds them to the
// [user] section, creating the section or the file when absent. Nothing
// else in the file changes. It returns the resulting identity.
func Ensure(path string, p prompt.Prompter) (Identity, error) {
	cfg, err := load(path)
	if err != nil {
		return Identity{}, err
	}
	sec := cfg.Section(section)
	id := Identity{Name: value(sec, "name"), Email: value(sec, "email")}

	var added []string
	for _, f := range fields {
		if value(sec, f.key) != "" {
			continue
		}
		answer, err := p.Ask(f.label)
		if err != nil {
			return Identity{}, err
		}
		added = append(added, fmt.Sprintf("\t%s = %s", f.key, quote(answer)))
		switch f.key {
		case "name":
			id.Name = answer
		case "email":
			id.Email = answer
		}
	}
	if len(added) == 0 {
		return id, nil
	}

	if err := insert(path, added); err != nil {
		return Identity{}, err
	}
	logger.Info("Saved identity %s <%s> to %s", id.Name, id.Email, path)
	return id, nil
}

// insert adds lines right after the first [user] header, or appends a new
// [user] section when there is none.
func insert(path string, lines []string) error {
	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	existing := strings.SplitAfter(string(raw), "\n")
	if existing[len(existing)-1] == "" {
		existing = existing[:len(existing)-1]
	}
	block := strings.Join(lines, "\n") + "\n"

	var out strings.Builder
	inserted := false
	for _, l := range existing {
		out.WriteString(l)
		if !inserted && userHeader.MatchString(l) {
			if !strings.HasSuffix(l, "\n") {
				out.WriteString("\n")
			}
			out.WriteString(block)
			inserted = true
		}
	}
	if !inserted {
		if s := out.String(); s != "" && !strings.HasSuffix(s, "\n") {
			out.WriteString("\n")
		}
		out.WriteString("[user]\n" + block)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(out.String()), perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// quote wraps values git would otherwise trim or cut at a comment character.
func quote(v string) string {
	if v != strings.TrimSpace(v) || strings.ContainsAny(v, `#;"\`) {
		return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
	}
	return v
}

func load(path string) (*ini.File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Loose:                      true, // no file yet is the normal first-run case
		IgnoreInlineComment:        true,
		AllowBooleanKeys:           true,
		AllowShadows:               true, // credential.helper, remote.*.fetch and friends repeat
		AllowDuplicateShadowValues: true,
		PreserveSurroundedQuote:    true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

// value reads a key without creating it; ini's Section.Key adds missing keys.
func value(sec *ini.Section, key string) string {
	if !sec.HasKey(key) {
		return ""
	}
	v := strings.TrimSpace(sec.Key(key).String())
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		v = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(v[1 : len(v)-1])
	}
	return v
}
