// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package fingerprint

import (
	"time"

	"github.com/relboost/engine/pkg/lrucache"
)

// permanentTTL is the lifetime given to a successfully built
// artifact. Fingerprints are content-addressed: once built, a given
// digest's artifact never needs to be rebuilt, so eviction is driven
// entirely by the cache's memory budget, not by time.
const permanentTTL = 100 * 365 * 24 * time.Hour

// Builder computes the artifact for a fingerprint on a cache miss.
type Builder func() (artifact any, size int, err error)

// Cache is spec.md §4.9's content-addressed, at-most-one-concurrent-
// build-per-fingerprint cache: a thin wrapper over the teacher's
// pkg/lrucache.Cache, whose Get already blocks concurrent callers of
// the same key on the first caller's in-flight computation
// (sync.Cond-based "others wait" semantics) rather than ever
// duplicating a build.
type Cache struct {
	inner *lrucache.Cache
}

// NewCache returns a Cache holding up to maxBytes of serialized
// artifacts (ensembles, trained subtrees) before evicting by recency.
func NewCache(maxBytes int) *Cache {
	return &Cache{inner: lrucache.New(maxBytes)}
}

// buildResult carries a Builder's outcome through lrucache's
// interface{}-typed ComputeValue, since lrucache has no notion of a
// build error - it can only cache a value.
type buildResult struct {
	artifact any
	err      error
}

// Get returns the cached artifact for fp, building it via build on a
// miss. Concurrent Get calls for the same fingerprint never trigger
// duplicate builds: the second caller blocks until the first's build
// finishes, then receives its result. A failed build is never cached
// permanently — it is evicted immediately so the next Get for the
// same fingerprint retries instead of replaying the same error
// forever.
func (c *Cache) Get(fp Fingerprint, build Builder) (any, error) {
	digest := fp.Digest()
	raw := c.inner.Get(digest, func() (interface{}, time.Duration, int) {
		artifact, size, err := build()
		if err != nil {
			return buildResult{err: err}, 0, 0
		}
		return buildResult{artifact: artifact}, permanentTTL, size
	})
	result := raw.(buildResult)
	if result.err != nil {
		c.inner.Del(digest)
	}
	return result.artifact, result.err
}
