// Package installer turns configuration entries into provisioning steps.
//
// Every kind of entry maps to one or more provision.Step values whose Check
// detects the effect already being in place, so a second run skips them.
package installer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/atotto/clipboard"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/prefs"
	"mac-bootstrap/internal/prompt"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/runner"
)

// Deps are the collaborators steps run against.
type Deps struct {
	Runner runner.Runner
	// Defaults backs preferences with store "defaults".
	Defaults prefs.Store
	// Directory backs preferences with store "directory".
	Directory prefs.Store
	Prompter  prompt.Prompter
	// HTTP downloads installer scripts and archives. Nil means http.DefaultClient.
	HTTP *http.Client
	// Clipboard receives the generated public key. Nil means the system clipboard.
	Clipboard func(string) error
}

func (d Deps) httpClient() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return http.DefaultClient
}

func (d Deps) copyToClipboard(s string) error {
	if d.Clipboard != nil {
		return d.Clipboard(s)
	}
	return clipboard.WriteAll(s)
}

// builder carries what later entries need to know about earlier ones.
type builder struct {
	deps Deps
	// identityFile is the file of the last identity entry, used as the
	// default comment source for ssh-key entries.
	identityFile string
}

// Build creates the registry for cfg. Entries expanding into several steps
// (one per brew package) name them "<entry>:<item>" and share the entry name
// as their group, so After can refer to the whole entry.
func Build(cfg *config.Config, deps Deps) (*provision.Registry, error) {
	b := &builder{deps: deps}
	reg := provision.NewRegistry()

	for _, entry := range cfg.Steps {
		policy, err := provision.ParsePolicy(entry.OnFailure, provision.Continue)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name, err)
		}
		steps, err := b.steps(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name, err)
		}
		for i := range steps {
			steps[i].OnFailure = policy
			steps[i].After = append([]string(nil), entry.After...)
		}
		if err := reg.Add(steps...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (b *builder) steps(entry config.Step) ([]provision.Step, error) {
	switch entry.Kind {
	case config.KindScript:
		return []provision.Step{b.script(entry)}, nil
	case config.KindBrew:
		return b.brew(entry), nil
	case config.KindArchive:
		return []provision.Step{b.archive(entry)}, nil
	case config.KindDirectories:
		return []provision.Step{b.directories(entry)}, nil
	case config.KindProfile:
		return []provision.Step{b.profile(entry)}, nil
	case config.KindPreferences:
		return []provision.Step{b.preferences(entry)}, nil
	case config.KindIdentity:
		b.identityFile = entry.File
		return []provision.Step{b.identity(entry)}, nil
	case config.KindSSHKey:
		return []provision.Step{b.sshKey(entry, b.identityFile)}, nil
	case config.KindCommand:
		if len(entry.Check) == 0 || len(entry.Run) == 0 {
			return nil, errors.New("command entries need both check and run")
		}
		return []provision.Step{b.command(entry)}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", entry.Kind)
	}
}
