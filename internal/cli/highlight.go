// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/muesli/termenv"
)

// JSONPrinter writes JSON documents one per call, indented and syntax
// highlighted when the destination is a colour terminal.
type JSONPrinter struct {
	output    io.Writer
	formatter string
}

// NewJSONPrinter detects the colour support of output. NO_COLOR and
// non-terminal outputs get plain text.
func NewJSONPrinter(output *os.File) *JSONPrinter {
	printer := &JSONPrinter{output: output}
	switch termenv.NewOutput(output).EnvColorProfile() {
	case termenv.TrueColor:
		printer.formatter = "terminal16m"
	case termenv.ANSI256:
		printer.formatter = "terminal256"
	case termenv.ANSI:
		printer.formatter = "terminal16"
	}
	return printer
}

// NewPlainJSONPrinter never highlights.
func NewPlainJSONPrinter(output io.Writer) *JSONPrinter {
	return &JSONPrinter{output: output}
}

// Print writes one document. raw is re-indented; a value that is not
// raw JSON is marshalled first.
func (p *JSONPrinter) Print(value any) error {
	var indented bytes.Buffer
	switch raw := value.(type) {
	case []byte:
		if err := json.Indent(&indented, raw, "", "  "); err != nil {
			return fmt.Errorf("indenting JSON: %w", err)
		}
	case json.RawMessage:
		if err := json.Indent(&indented, raw, "", "  "); err != nil {
			return fmt.Errorf("indenting JSON: %w", err)
		}
	default:
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		indented.Write(encoded)
	}
	indented.WriteByte('\n')

	if p.formatter == "" {
		_, err := p.output.Write(indented.Bytes())
		return err
	}
	if err := quick.Highlight(p.output, indented.String(), "json", p.formatter, "monokai"); err != nil {
		_, err = p.output.Write(indented.Bytes())
		return err
	}
	return nil
}
