package refine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

// DefaultCacheSize bounds the number of remembered refinements.
const DefaultCacheSize = 128

// Cache remembers accepted refinements keyed by audio and transcript
// content, so replaying an utterance skips the tool.
type Cache struct {
	lru *lru.Cache[string, []viseme.Cue]
}

// NewCache creates a cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []viseme.Cue](size)
	if err != nil {
		return nil, fmt.Errorf("refine: create cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Key hashes the request content.
func Key(req Request) string {
	h := sha256.New()
	var rate [8]byte
	binary.LittleEndian.PutUint64(rate[:], uint64(req.PCM.SampleRate))
	h.Write(rate[:])
	h.Write(req.PCM.Bytes())
	h.Write([]byte(req.Transcript))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached cues.
func (c *Cache) Get(key string) ([]viseme.Cue, bool) {
	cues, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return append([]viseme.Cue(nil), cues...), true
}

// Add stores a copy of cues.
func (c *Cache) Add(key string, cues []viseme.Cue) {
	c.lru.Add(key, append([]viseme.Cue(nil), cues...))
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}
