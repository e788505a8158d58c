package installer

import (
	"context"
	"os"

	"github.com/fatih/color"

	"mac-bootstrap/internal/config"
	"mac-bootstrap/internal/identity"
	"mac-bootstrap/internal/logger"
	"mac-bootstrap/internal/provision"
	"mac-bootstrap/internal/sshkey"
)

const keysURL = "https://github.com/settings/keys"

func (b *builder) identity(entry config.Step) provision.Step {
	return provision.Step{
		Name:        entry.Name,
		SideEffects: []string{entry.File},
		Check: func(context.Context) (bool, error) {
			id, err := identity.Load(entry.File)
			return id.Complete(), err
		},
		Apply: func(context.Context) error {
			_, err := identity.Ensure(entry.File, b.deps.Prompter)
			return err
		},
	}
}

// sshKey generates a key pair, or completes one whose public half is
// missing, and shows the public key for registration. Without an explicit
// comment the email from identityFile is used.
func (b *builder) sshKey(entry config.Step, identityFile string) provision.Step {
	return provision.Step{
		Name:        entry.Name,
		SideEffects: []string{entry.File, sshkey.PublicPath(entry.File)},
		Check: func(context.Context) (bool, error) {
			return sshkey.Exists(entry.File), nil
		},
		Apply: func(context.Context) error {
			comment := entry.Comment
			if comment == "" && identityFile != "" {
				if id, err := identity.Load(identityFile); err == nil {
					comment = id.Email
				}
			}

			var kp sshkey.KeyPair
			if _, err := os.Stat(entry.File); err == nil {
				// An existing private key is never replaced; only its public half is restored.
				if kp, err = sshkey.DerivePublic(entry.File, comment); err != nil {
					return err
				}
				logger.Info("Wrote missing %s for the existing key (%s)", kp.PublicPath, kp.Fingerprint)
			} else {
				if kp, err = sshkey.Generate(entry.File, comment); err != nil {
					return err
				}
				logger.Info("Generated %s (%s)", kp.PrivatePath, kp.Fingerprint)
			}
			logger.Info("Public key:")
			logger.Print(color.New(color.Bold), "%s", kp.AuthorizedKey)

			if err := b.deps.copyToClipboard(kp.AuthorizedKey); err != nil {
				logger.Warn("Could not copy the public key to the clipboard: %v", err)
			} else {
				logger.Info("Public key copied to the clipboard")
			}
			logger.Info("Add it to your account at %s", keysURL)
			return nil
		},
	}
}
