package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Cached Provider
// =============================================================================

// CachedProvider wraps a Provider with an LRU cache keyed on the full
// conversation and temperature. Identical prompts return the cached
// completion without a network round trip.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, string]
}

// NewCachedProvider wraps the given provider with an LRU cache of the given
// capacity.
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating llm cache: %w", err)
	}
	return &CachedProvider{
		inner: inner,
		cache: cache,
	}, nil
}

// Name returns the wrapped provider's identifier.
func (p *CachedProvider) Name() string { return p.inner.Name() }

// Generate returns a cached completion when one exists for the exact
// conversation, otherwise delegates to the wrapped provider and stores the
// result. Errors are never cached.
func (p *CachedProvider) Generate(ctx context.Context, messages []Message, temperature float64) (string, error) {
	key := cacheKey(messages, temperature)

	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	result, err := p.inner.Generate(ctx, messages, temperature)
	if err != nil {
		return "", err
	}
	p.cache.Add(key, result)
	return result, nil
}

// Len reports the number of cached completions.
func (p *CachedProvider) Len() int { return p.cache.Len() }

func cacheKey(messages []Message, temperature float64) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(temperature, 'f', -1, 64))
	for _, m := range messages {
		sb.WriteString("\x00")
		sb.WriteString(string(m.Role))
		sb.WriteString("\x00")
		sb.WriteString(m.Content)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
