// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the evaluator's CBOR encoding configuration.
//
// The evaluator speaks JSON on the network: workers and observers are
// written against the JSON envelope and nothing else. CBOR is used
// only for files the evaluator writes for itself, such as snapshot
// archives, where a compact self-delimiting binary form is worth more
// than readability.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces the same bytes, and writes times
// as RFC 3339 strings with nanoseconds so job timestamps survive a
// round trip. Types tagged only with `json` tags encode under those
// names, which lets the snapshot wire types be archived without a
// second set of tags.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
package codec
