package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
)

// hBits is the number of seed-derived bits feeding the crash distribution.
const hBits = 52

// DeriveCrashPoint computes the crash multiplier, in hundredths, from a round
// seed and an optional client seed (empty by default):
//
//	h     = HMAC_SHA256(seed, clientSeed)
//	H     = first 13 hex chars of h as a 52-bit integer
//	E     = 2^52
//	crash = floor(100 * (100*E - H) / (E - H)), clamped to >= 100
//
// The derivation is deterministic, so anyone holding the revealed seed can
// recompute the crash point and check it against the committed hash.
func DeriveCrashPoint(seed, clientSeed []byte) int64 {
	mac := hmac.New(sha256.New, seed)
	mac.Write(clientSeed)
	digest := hex.EncodeToString(mac.Sum(nil))

	h, err := strconv.ParseUint(digest[:13], 16, 64)
	if err != nil {
		// 13 hex chars of a sha256 digest always parse
		return 100
	}

	const e = uint64(1) << hBits
	if h >= e {
		return 100
	}

	// 100*(100E - H) exceeds 64 bits, so the division runs in big integers.
	num := new(big.Int).SetUint64(100*e - h)
	num.Mul(num, big.NewInt(100))
	den := new(big.Int).SetUint64(e - h)
	num.Quo(num, den)

	crash := num.Int64()
	if crash < 100 {
		crash = 100
	}
	return crash
}

// crashDelay is the time from round start until the multiplier reaches the
// crash point, given linear growth of 1.00x per second.
func crashDelay(crashPoint int64) int64 {
	delay := (crashPoint - 100) * 10
	if delay < 100 {
		delay = 100
	}
	return delay
}
