// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitorui

import (
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// fuzzyMatcher scores row text against the filter with fzf's V2
// algorithm. It reuses one slab across calls and is not safe for
// concurrent use; the model only calls it from Update.
type fuzzyMatcher struct {
	slab *util.Slab
}

func newFuzzyMatcher() *fuzzyMatcher {
	return &fuzzyMatcher{slab: util.MakeSlab(100*1024, 2048)}
}

// match reports whether every rune of pattern appears in text in
// order, ignoring case. An empty pattern matches everything.
func (matcher *fuzzyMatcher) match(text, pattern string) (score int, ok bool) {
	if pattern == "" {
		return 0, true
	}
	// Fold both sides; the input is not folded by fzf.
	chars := util.ToChars([]byte(strings.ToLower(text)))
	result, _ := algo.FuzzyMatchV2(false, true, true, &chars, []rune(strings.ToLower(pattern)), false, matcher.slab)
	if result.Start < 0 {
		return 0, false
	}
	return result.Score, true
}
