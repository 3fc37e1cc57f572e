// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package fingerprint

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDigestStableAndOrderIndependent(t *testing.T) {
	a := New("ensemble", "pop-schema", []string{"b", "a"}, []byte(`{"x":1}`), 42, []string{"dep2", "dep1"})
	b := New("ensemble", "pop-schema", []string{"a", "b"}, []byte(`{"x":1}`), 42, []string{"dep1", "dep2"})
	require.Equal(t, a.Digest(), b.Digest())
}

func TestDigestChangesWithSeed(t *testing.T) {
	a := New("ensemble", "pop", nil, nil, 1, nil)
	b := New("ensemble", "pop", nil, nil, 2, nil)
	require.NotEqual(t, a.Digest(), b.Digest())
}

func TestCacheBuildsOncePerFingerprint(t *testing.T) {
	c := NewCache(1 << 20)
	fp := New("ensemble", "pop", nil, nil, 1, nil)

	var builds int64
	build := func() (any, int, error) {
		atomic.AddInt64(&builds, 1)
		time.Sleep(10 * time.Millisecond)
		return "artifact", 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(fp, build)
			require.NoError(t, err)
			require.Equal(t, "artifact", v)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), builds)
}

func TestCacheDoesNotStickyCacheErrors(t *testing.T) {
	c := NewCache(1 << 20)
	fp := New("ensemble", "pop", nil, nil, 7, nil)

	attempt := 0
	build := func() (any, int, error) {
		attempt++
		if attempt == 1 {
			return nil, 0, errors.New("transient failure")
		}
		return "ok", 1, nil
	}

	_, err := c.Get(fp, build)
	require.Error(t, err)

	v, err := c.Get(fp, build)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}
