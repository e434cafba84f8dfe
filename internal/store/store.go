// Package store implements the artifact cache: a content-addressed
// on-disk JSON store keyed by (chainId, address, kind), with first-class
// negative entries and an in-memory ristretto front cache layered on top.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"

	"github.com/chainsecurity/proposal-decoder/internal/models"
)

// NegativeReason is the marker stored when a fetch determined an artifact
// does not exist, as opposed to never having looked.
type NegativeReason string

const (
	ReasonUnverifiedOrMissing NegativeReason = "unverified_or_missing"
	ReasonUnsupportedChain    NegativeReason = "unsupported_chain"
	ReasonNull                NegativeReason = "null"
)

// Entry is the stored value for one ArtifactKey: either a payload or a
// negative marker, never both.
type Entry struct {
	Payload  json.RawMessage `json:"payload,omitempty"`
	Negative NegativeReason  `json:"negative,omitempty"`
}

// IsNegative reports whether this entry records an authoritative absence.
func (e Entry) IsNegative() bool {
	return e.Negative != ""
}

// ArtifactStore is a read-mostly disk cache, race-tolerant: concurrent
// writers to the same key are not required to serialize, and writes are
// atomic (temp file + rename) so a reader never observes a partially
// written file.
type ArtifactStore struct {
	root    string
	front   *ristretto.Cache[string, Entry]
	log     zerolog.Logger
}

// New creates an ArtifactStore rooted at root (created if absent).
func New(root string, logger zerolog.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating cache root %s: %w", root, err)
	}

	front, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: 1e5,
		MaxCost:     1 << 24, // 16MiB of front-cache entries
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("store: creating in-memory front cache: %w", err)
	}

	return &ArtifactStore{root: root, front: front, log: logger}, nil
}

// path lays files out as <root>/<kind>/<chainId>/<checksumAddress>.json.
// Callers pass EIP-55-checksummed addresses; the filename keeps that form.
func (s *ArtifactStore) path(key models.ArtifactKey) string {
	return filepath.Join(s.root, string(key.Kind), fmt.Sprintf("%d", key.ChainID), key.Address+".json")
}

func cacheKey(key models.ArtifactKey) string {
	return fmt.Sprintf("%s:%d:%s", key.Kind, key.ChainID, strings.ToLower(key.Address))
}

// Get returns the cached Entry for key, or (Entry{}, false) if nothing has
// ever been cached for it. Callers distinguish "never fetched" (false) from
// "fetched and found absent" (Entry.IsNegative()).
func (s *ArtifactStore) Get(key models.ArtifactKey) (Entry, bool) {
	if e, ok := s.front.Get(cacheKey(key)); ok {
		return e, true
	}

	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("key", cacheKey(key)).Msg("store: reading artifact, falling back to miss")
		}
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// A reader must tolerate a partial write by falling back to refetch
		// rather than surfacing a parse error.
		s.log.Warn().Err(err).Str("key", cacheKey(key)).Msg("store: corrupt artifact entry, treating as miss")
		return Entry{}, false
	}

	s.front.Set(cacheKey(key), e, 1)
	return e, true
}

// Put persists e for key: at-most-once-on-disk representation, last write
// wins, atomic replacement via write-to-temp-then-rename.
func (s *ArtifactStore) Put(key models.ArtifactKey, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshaling entry for %s: %w", cacheKey(key), err)
	}

	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("store: creating directory for %s: %w", dest, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: creating temp file for %s: %w", dest, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing temp file for %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing temp file for %s: %w", dest, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("store: renaming into place for %s: %w", dest, err)
	}

	s.front.Set(cacheKey(key), e, 1)
	return nil
}

// PutPayload is a convenience wrapper that marshals payload and stores it as
// a positive entry.
func (s *ArtifactStore) PutPayload(key models.ArtifactKey, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshaling payload for %s: %w", cacheKey(key), err)
	}
	return s.Put(key, Entry{Payload: raw})
}

// PutNegative stores a negative marker with the given reason.
func (s *ArtifactStore) PutNegative(key models.ArtifactKey, reason NegativeReason) error {
	return s.Put(key, Entry{Negative: reason})
}
