// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// An archive identity (the age private key that opens sealed snapshot
// archives) is read into a [Buffer]: anonymous mmap memory locked
// against swap and excluded from core dumps. Close zeroes and unmaps
// it. The garbage collector never sees the bytes, so they cannot be
// copied around the heap behind the program's back.
package secret
