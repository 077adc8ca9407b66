// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultShaderCacheSize bounds the number of translated shaders kept
// per process.
const DefaultShaderCacheSize = 128

// ShaderCacheStats reports shader cache effectiveness.
type ShaderCacheStats struct {
	Len    int
	Hits   uint64
	Misses uint64
}

// shaderCache maps generated WGSL source to SPIR-V words. Every pyramid
// level of a detector compiles the same source, and a restored context
// recompiles all of them, so naga only runs once per distinct shader.
type shaderCache struct {
	entries *lru.Cache[string, []uint32]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

func newShaderCache(size int) *shaderCache {
	if size <= 0 {
		size = DefaultShaderCacheSize
	}
	entries, err := lru.New[string, []uint32](size)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &shaderCache{entries: entries}
}

// getOrCompile returns the cached words for src or stores the result of
// build. Failed builds are not cached.
func (c *shaderCache) getOrCompile(src string, build func(string) ([]uint32, error)) ([]uint32, error) {
	if words, ok := c.entries.Get(src); ok {
		c.hits.Add(1)
		return words, nil
	}
	c.misses.Add(1)
	words, err := build(src)
	if err != nil {
		return nil, err
	}
	c.entries.Add(src, words)
	return words, nil
}

func (c *shaderCache) stats() ShaderCacheStats {
	return ShaderCacheStats{
		Len:    c.entries.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

func (c *shaderCache) purge() {
	c.entries.Purge()
}

var shaders = newShaderCache(DefaultShaderCacheSize)

// ShaderCache returns statistics for the process wide shader cache.
func ShaderCache() ShaderCacheStats {
	return shaders.stats()
}

// PurgeShaderCache drops every cached translation.
func PurgeShaderCache() {
	shaders.purge()
}
