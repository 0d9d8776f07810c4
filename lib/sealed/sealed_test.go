// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func seal(t *testing.T, plaintext []byte, recipients ...string) []byte {
	t.Helper()
	var ciphertext bytes.Buffer
	writer, err := Seal(&ciphertext, recipients...)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return ciphertext.Bytes()
}

func TestGenerateKeypair(t *testing.T) {
	first := generate(t)
	second := generate(t)

	if !strings.HasPrefix(first.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("private key has no AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(first.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want age1 prefix", first.PublicKey)
	}
	if first.PublicKey == second.PublicKey {
		t.Error("two keypairs share a public key")
	}

	derived, err := PublicKeyOf(first.PrivateKey)
	if err != nil {
		t.Fatalf("PublicKeyOf: %v", err)
	}
	if derived != first.PublicKey {
		t.Errorf("PublicKeyOf = %q, want %q", derived, first.PublicKey)
	}
}

func TestSealOpen(t *testing.T) {
	operator := generate(t)
	escrow := generate(t)
	plaintext := bytes.Repeat([]byte("snapshot "), 20000)

	ciphertext := seal(t, plaintext, operator.PublicKey, escrow.PublicKey)
	if bytes.Contains(ciphertext, []byte("snapshot snapshot")) {
		t.Fatal("ciphertext contains plaintext")
	}

	for name, keypair := range map[string]*Keypair{"operator": operator, "escrow": escrow} {
		t.Run(name, func(t *testing.T) {
			reader, err := Open(bytes.NewReader(ciphertext), keypair.PrivateKey)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			got, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("plaintext mismatch: got %d bytes, want %d", len(got), len(plaintext))
			}
		})
	}
}

func TestOpenWrongKey(t *testing.T) {
	owner := generate(t)
	stranger := generate(t)
	ciphertext := seal(t, []byte("private"), owner.PublicKey)

	if _, err := Open(bytes.NewReader(ciphertext), stranger.PrivateKey); err == nil {
		t.Error("Open succeeded with the wrong identity")
	}
}

func TestOpenCorrupted(t *testing.T) {
	owner := generate(t)
	ciphertext := seal(t, bytes.Repeat([]byte("x"), 4096), owner.PublicKey)
	ciphertext[len(ciphertext)-10] ^= 0xff

	reader, err := Open(bytes.NewReader(ciphertext), owner.PrivateKey)
	if err != nil {
		return
	}
	if _, err := io.ReadAll(reader); err == nil {
		t.Error("corrupted ciphertext read without error")
	}
}

func TestSealRejectsRecipients(t *testing.T) {
	if _, err := Seal(io.Discard); err == nil {
		t.Error("Seal accepted no recipients")
	}
	if _, err := Seal(io.Discard, "age1notakey"); err == nil {
		t.Error("Seal accepted an invalid recipient")
	}
}

func TestParsePublicKey(t *testing.T) {
	keypair := generate(t)
	if err := ParsePublicKey(keypair.PublicKey + "\n"); err != nil {
		t.Errorf("ParsePublicKey(valid): %v", err)
	}
	if err := ParsePublicKey("ssh-ed25519 AAAA"); err == nil {
		t.Error("ParsePublicKey accepted a non-age key")
	}
}

func TestIsSealed(t *testing.T) {
	owner := generate(t)
	ciphertext := seal(t, []byte("content"), owner.PublicKey)

	reader := bufio.NewReader(bytes.NewReader(ciphertext))
	if !IsSealed(reader) {
		t.Error("IsSealed(ciphertext) = false")
	}
	rest, _ := io.ReadAll(reader)
	if !bytes.Equal(rest, ciphertext) {
		t.Error("IsSealed consumed input")
	}

	if IsSealed(bufio.NewReader(strings.NewReader("\xa8plain cbor"))) {
		t.Error("IsSealed(plaintext) = true")
	}
	if IsSealed(bufio.NewReader(strings.NewReader(""))) {
		t.Error("IsSealed(empty) = true")
	}
}
