// Package cos provides common low-level types and utilities.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"unsafe"
)

const (
	letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	lenLetters  = len(letterBytes)

	lenReqID = 10
)

// GenRequestID returns a short random id used to namespace scratch files
// during an atomic write (see internal/registry's temp-file + rename).
func GenRequestID() string { return CryptoRandS(lenReqID) }

// CryptoRandS returns a cryptographically random alphanumeric string of length l.
func CryptoRandS(l int) string {
	b := make([]byte, l)
	if _, err := rand.Read(b); err != nil {
		// extremely unlikely; fall back to a fixed pattern rather than panic
		for i := range b {
			b[i] = letterBytes[i%lenLetters]
		}
		return UnsafeS(b)
	}
	for i, c := range b {
		b[i] = letterBytes[int(c)%lenLetters]
	}
	return UnsafeS(b)
}

func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
