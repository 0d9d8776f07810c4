// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with status 1. A
// context cancellation (the user pressed Ctrl-C) exits with status 130
// and no message.
func Fatal(err error) {
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
