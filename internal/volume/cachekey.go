// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/bureau-foundation/pipeline-runner/internal/pipeerr"
	"github.com/bureau-foundation/pipeline-runner/internal/pipelinedef"
)

// defaultCacheKey is the constant key used when a cache declares no
// key.files list (spec.md §4.2).
const defaultCacheKey = "default"

// ComputeKey derives a cache's key per spec.md §4.2: the lowercase
// hexadecimal SHA-256 of the concatenation of the SHA-256 digests of
// each file named in cache.Key.Files, in declared order, resolved
// relative to buildDir. A missing file is a hard
// pipeerr.CacheKeyMissingFileError — the teacher's "fail loud rather
// than silently degrade" convention (cmd/bureau-pipeline-executor's
// invalid-timeout handling is the same shape).
//
// SHA-256 is used rather than the teacher's own blake3 (lib's fastest
// general-purpose hash) because the cache key must match the hosted
// service's own documented derivation bit-for-bit — this is the one
// place in the module where matching an external format overrides
// the usual "prefer the teacher's library" rule (see SPEC_FULL.md §B).
func ComputeKey(cache pipelinedef.CacheSpec, buildDir string) (string, error) {
	if cache.Key == nil || len(cache.Key.Files) == 0 {
		return defaultCacheKey, nil
	}

	combined := make([]byte, 0, sha256.Size*len(cache.Key.Files))
	for _, relPath := range cache.Key.Files {
		path := buildDir + "/" + relPath
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &pipeerr.CacheKeyMissingFileError{Cache: cache.Name, File: relPath}
		}
		digest := sha256.Sum256(data)
		combined = append(combined, digest[:]...)
	}

	final := sha256.Sum256(combined)
	return hex.EncodeToString(final[:]), nil
}
