// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts snapshot archives to age recipients.
//
// An evaluator configured with archive recipients writes its end-of-run
// archive through [Seal]; anyone holding a matching identity can open it
// with [Open]. Recipients are age x25519 public keys (age1...), so an
// operator can publish the key the evaluators seal to and keep the
// identity offline.
//
// Identities are passed as *secret.Buffer values and are borrowed: the
// functions here never close them.
package sealed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/evaluator/lib/secret"
)

// magic is the first line of every age file in binary form.
const magic = "age-encryption.org/v1\n"

// Keypair holds an age x25519 keypair. The caller must Close it.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... identity.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient. Safe to publish.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// ParsePublicKey validates an age1... recipient string.
func ParsePublicKey(key string) error {
	if _, err := age.ParseX25519Recipient(strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("parsing recipient key %q: %w", key, err)
	}
	return nil
}

// PublicKeyOf derives the recipient string of an identity.
func PublicKeyOf(privateKey *secret.Buffer) (string, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}
	return identity.Recipient().String(), nil
}

// Seal returns a writer that encrypts everything written to it to the
// given recipients and forwards the ciphertext to w. The ciphertext is
// complete only after Close. At least one recipient is required.
func Seal(w io.Writer, recipientKeys ...string) (io.WriteCloser, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	writer, err := age.Encrypt(w, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	return writer, nil
}

// Open returns a reader of the plaintext sealed in r. Authentication
// failures surface from Read, so the caller must read to EOF before
// trusting the content.
func Open(r io.Reader, privateKey *secret.Buffer) (io.Reader, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	reader, err := age.Decrypt(r, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return reader, nil
}

// IsSealed reports whether r starts with an age header. It peeks
// without consuming.
func IsSealed(r *bufio.Reader) bool {
	prefix, _ := r.Peek(len(magic))
	return bytes.Equal(prefix, []byte(magic))
}
