// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads evaluator configuration.
//
// Configuration comes from a single YAML file named by the --config
// flag or, failing that, the EE_CONFIG environment variable. There is
// no search path. Without either, [Default] applies unchanged, which
// is what tests and ad-hoc runs want. Command-line flags override
// individual fields after loading.
//
//	evaluator:
//	  host: 0.0.0.0
//	  port: 51820
//	  drain_timeout: 30s
//	logging:
//	  format: json
//	archive:
//	  path: ${RUNPATH:-/tmp}/snapshot.ee
package config
