// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("AGE-SECRET-KEY-1EXAMPLE")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if buffer.String() != "AGE-SECRET-KEY-1EXAMPLE" {
		t.Errorf("contents = %q", buffer.String())
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed", index)
		}
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New(0) succeeded")
	}
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("NewFromBytes(nil) succeeded")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestReadFile(t *testing.T) {
	directory := t.TempDir()

	cases := map[string]struct {
		content string
		want    string
	}{
		"bare key":         {"AGE-SECRET-KEY-1ABC\n", "AGE-SECRET-KEY-1ABC"},
		"age-keygen style": {"# created: 2026-01-01\n# public key: age1xyz\nAGE-SECRET-KEY-1DEF\n", "AGE-SECRET-KEY-1DEF"},
		"padded":           {"\n   AGE-SECRET-KEY-1GHI  \n", "AGE-SECRET-KEY-1GHI"},
	}
	for name, test := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(directory, name)
			if err := os.WriteFile(path, []byte(test.content), 0o600); err != nil {
				t.Fatal(err)
			}
			buffer, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			defer buffer.Close()
			if buffer.String() != test.want {
				t.Errorf("key = %q, want %q", buffer.String(), test.want)
			}
		})
	}

	t.Run("comments only", func(t *testing.T) {
		path := filepath.Join(directory, "comments")
		if err := os.WriteFile(path, []byte("# nothing here\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFile(path); err == nil {
			t.Error("ReadFile accepted a file without a key")
		}
	})
}
