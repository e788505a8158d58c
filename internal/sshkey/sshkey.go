// Package sshkey generates the workstation's SSH key pair.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyPair describes a key pair on disk.
type KeyPair struct {
	PrivatePath string
	PublicPath  string
	// AuthorizedKey is the public key line to register with a remote service.
	AuthorizedKey string
	Fingerprint   string
}

// PublicPath returns the conventional public key path for a private key.
func PublicPath(privatePath string) string {
	return privatePath + ".pub"
}

// Exists reports whether both halves of the pair are present.
func Exists(privatePath string) bool {
	for _, p := range []string{privatePath, PublicPath(privatePath)} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Generate creates an ed25519 key pair without a passphrase. It never
// overwrites an existing private key; use DerivePublic when only the
// public half is missing.
func Generate(privatePath, comment string) (KeyPair, error) {
	if _, err := os.Stat(privatePath); err == nil {
		return KeyPair{}, fmt.Errorf("%s: %w", privatePath, fs.ErrExist)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return KeyPair{}, fmt.Errorf("encode private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("encode public key: %w", err)
	}

	authorized := authorizedLine(sshPub, comment)

	if err := os.MkdirAll(filepath.Dir(privatePath), 0o700); err != nil {
		return KeyPair{}, fmt.Errorf("create %s: %w", filepath.Dir(privatePath), err)
	}
	if err := writeExclusive(privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return KeyPair{}, err
	}
	if err := os.WriteFile(PublicPath(privatePath), []byte(authorized+"\n"), 0o644); err != nil {
		return KeyPair{}, fmt.Errorf("write %s: %w", PublicPath(privatePath), err)
	}

	return KeyPair{
		PrivatePath:   privatePath,
		PublicPath:    PublicPath(privatePath),
		AuthorizedKey: authorized,
		Fingerprint:   ssh.FingerprintSHA256(sshPub),
	}, nil
}

// DerivePublic writes the missing public half of an existing private key.
// The private key is only read. A passphrase-protected OpenSSH key still
// yields its public half, which the format stores unencrypted.
func DerivePublic(privatePath, comment string) (KeyPair, error) {
	data, err := os.ReadFile(privatePath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read private key: %w", err)
	}

	var pub ssh.PublicKey
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		pub = signer.PublicKey()
	case errors.As(err, &missing) && missing.PublicKey != nil:
		pub = missing.PublicKey
	default:
		return KeyPair{}, fmt.Errorf("parse %s: %w", privatePath, err)
	}

	authorized := authorizedLine(pub, comment)
	if err := writeExclusive(PublicPath(privatePath), []byte(authorized+"\n"), 0o644); err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		PrivatePath:   privatePath,
		PublicPath:    PublicPath(privatePath),
		AuthorizedKey: authorized,
		Fingerprint:   ssh.FingerprintSHA256(pub),
	}, nil
}

// Load reads the public half of an existing pair.
func Load(privatePath string) (KeyPair, error) {
	data, err := os.ReadFile(PublicPath(privatePath))
	if err != nil {
		return KeyPair{}, fmt.Errorf("read public key: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parse %s: %w", PublicPath(privatePath), err)
	}
	return KeyPair{
		PrivatePath:   privatePath,
		PublicPath:    PublicPath(privatePath),
		AuthorizedKey: strings.TrimSpace(string(data)),
		Fingerprint:   ssh.FingerprintSHA256(pub),
	}, nil
}

func authorizedLine(pub ssh.PublicKey, comment string) string {
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

func writeExclusive(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Join(fmt.Errorf("write %s: %w", path, err), os.Remove(path))
	}
	return f.Close()
}
