// Package seedchain manages the append-only chain of seed commitments that
// backs provably-fair rounds. A commitment (idx, H(seed)) is published before
// any round uses the seed; the seed itself is revealed only after the round
// crashes, letting anyone verify both the hash and the derived crash point.
package seedchain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/repository"
)

// Store manages seed commitments. With a master secret configured, the seed
// for any index is recoverable after a restart; without one, seeds are
// random and held only in memory, which breaks auditing across restarts.
type Store struct {
	db     repository.DBTX
	repo   repository.SeedCommitRepository
	master []byte
	logger *slog.Logger

	mu        sync.Mutex
	ephemeral map[int64][]byte
}

// New creates a Store. master may be empty (ephemeral mode, logged as degraded).
func New(db repository.DBTX, repo repository.SeedCommitRepository, master string, logger *slog.Logger) *Store {
	s := &Store{
		db:        db,
		repo:      repo,
		master:    []byte(master),
		logger:    logger,
		ephemeral: make(map[int64][]byte),
	}
	if len(s.master) == 0 {
		logger.Warn("seed chain running without SEED_MASTER; seeds are ephemeral and rounds cannot be verified across restarts")
	}
	return s
}

// Deterministic reports whether seeds survive a process restart.
func (s *Store) Deterministic() bool { return len(s.master) > 0 }

// Latest returns the highest-index commitment, or nil if the chain is empty.
func (s *Store) Latest(ctx context.Context) (*domain.SeedCommit, error) {
	return s.repo.Latest(ctx, s.db)
}

// EnsureNext guarantees a commitment exists at max(idx)+1 and returns it with
// its seed. Safe under concurrent callers: the idx uniqueness constraint
// decides the winner and losers re-read.
func (s *Store) EnsureNext(ctx context.Context) (*domain.SeedCommit, []byte, error) {
	for attempt := 0; attempt < 5; attempt++ {
		latest, err := s.repo.Latest(ctx, s.db)
		if err != nil {
			return nil, nil, err
		}
		next := int64(1)
		if latest != nil {
			next = latest.Idx + 1
		}

		seed, err := s.SeedFor(next)
		if err != nil {
			return nil, nil, err
		}
		hash := HashSeed(seed)

		inserted, err := s.repo.Insert(ctx, s.db, next, hash)
		if err != nil {
			return nil, nil, err
		}
		if inserted {
			return &domain.SeedCommit{Idx: next, SeedHash: hash}, seed, nil
		}

		// Lost the race. With a master secret the winner committed the same
		// hash, so the commitment is still usable by this caller.
		existing, err := s.repo.FindByIdx(ctx, s.db, next)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil && bytes.Equal(existing.SeedHash, hash) {
			return existing, seed, nil
		}
		s.forget(next)
	}
	return nil, nil, fmt.Errorf("seed chain: could not append a commitment after repeated conflicts")
}

// SeedFor deterministically recovers the seed for idx when a master secret is
// configured: HMAC_SHA256(master, ascii(idx)). Without one, a random seed is
// minted per idx and remembered only in memory.
func (s *Store) SeedFor(idx int64) ([]byte, error) {
	if len(s.master) > 0 {
		mac := hmac.New(sha256.New, s.master)
		mac.Write([]byte(strconv.FormatInt(idx, 10)))
		return mac.Sum(nil), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seed, ok := s.ephemeral[idx]; ok {
		return seed, nil
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate ephemeral seed: %w", err)
	}
	s.ephemeral[idx] = seed
	s.logger.Warn("minted ephemeral seed", "idx", idx)
	return seed, nil
}

func (s *Store) forget(idx int64) {
	s.mu.Lock()
	delete(s.ephemeral, idx)
	s.mu.Unlock()
}

// HashSeed computes the public commitment hash for a seed.
func HashSeed(seed []byte) []byte {
	sum := sha256.Sum256(seed)
	return sum[:]
}
