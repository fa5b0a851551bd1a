package domain

import "time"

// SeedCommit is one link in the append-only commitment chain: the hash of a
// seed published before any round uses that seed. Idx is strictly
// increasing and unique.
type SeedCommit struct {
	Idx       int64     `json:"idx"`
	SeedHash  []byte    `json:"seed_hash"`
	CreatedAt time.Time `json:"created_at"`
}
