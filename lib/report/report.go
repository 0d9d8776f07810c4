// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report renders an archived snapshot as a Markdown summary,
// and that summary as a standalone HTML page.
//
// The Markdown is meant to be pasted into a ticket or a chat thread:
// one table row per realization, followed by the error message of
// every failed job.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/evaluator/lib/schema/event"
	"github.com/bureau-foundation/evaluator/lib/snapshot"
)

// Markdown writes the summary of an archived run.
func Markdown(w io.Writer, header snapshot.ArchiveHeader, view *snapshot.Snapshot) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Ensemble evaluation %s\n\n", inlineCode(header.EvaluatorID))
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Status | %s |\n", view.Status())
	fmt.Fprintf(&b, "| Archived | %s |\n", header.WrittenAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Messages sent | %d |\n", header.EventIndex)
	fmt.Fprintf(&b, "| Successful realizations | %d |\n", view.SuccessfulRealizationCount())
	fmt.Fprintf(&b, "| Digest | %s |\n\n", inlineCode(header.Digest.String()))

	b.WriteString("## Realizations\n\n")
	b.WriteString("| Realization | Status | Stages finished | Failed job |\n|---|---|---|---|\n")
	var failures []failure
	for _, realization := range view.Realizations() {
		finished := 0
		failedJob := ""
		for _, stage := range realization.Stages {
			if stage.Status == event.StatusFinished {
				finished++
			}
			for _, step := range stage.Steps {
				for _, job := range step.Jobs {
					if job.Status != event.StatusFailed {
						continue
					}
					if failedJob == "" {
						failedJob = job.Name
					}
					failures = append(failures, failure{
						path: event.Path{Realization: realization.ID, Stage: stage.ID, Step: step.ID, Job: job.ID},
						job:  job,
					})
				}
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %d/%d | %s |\n",
			realization.ID, realizationStatus(realization), finished, len(realization.Stages), escapeCell(failedJob))
	}

	if len(failures) > 0 {
		b.WriteString("\n## Failures\n")
		for _, failed := range failures {
			fmt.Fprintf(&b, "\n### %s %s\n\n", escapeCell(failed.job.Name), inlineCode(failed.path.String()))
			if code, ok := failed.job.Data["exit_code"]; ok {
				fmt.Fprintf(&b, "Exit code: %v\n\n", code)
			}
			if message, ok := failed.job.Data["error_msg"].(string); ok && message != "" {
				fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimRight(message, "\n"))
			}
		}
	}

	if metadata := view.Metadata(); len(metadata) > 0 {
		encoded, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		fmt.Fprintf(&b, "\n## Metadata\n\n```json\n%s\n```\n", encoded)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type failure struct {
	path event.Path
	job  *snapshot.Job
}

// realizationStatus is the first unfinished stage's status, or
// Finished when every stage finished.
func realizationStatus(realization *snapshot.Realization) event.Status {
	for _, stage := range realization.Stages {
		if stage.Status != event.StatusFinished {
			return stage.Status
		}
	}
	return event.StatusFinished
}

func inlineCode(text string) string {
	return "`" + strings.ReplaceAll(text, "`", "'") + "`"
}

func escapeCell(text string) string {
	return strings.ReplaceAll(text, "|", `\|`)
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

// HTML converts Markdown to a standalone page titled title.
func HTML(w io.Writer, title string, source []byte) error {
	var body bytes.Buffer
	if err := markdown().Convert(source, &body); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 0.2em 0.6em; }
pre { background: #f4f4f4; padding: 0.6em; overflow-x: auto; }
</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body.Bytes())
	return err
}
