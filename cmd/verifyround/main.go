// Command verifyround checks a revealed round offline: given the server seed
// it recomputes the commitment hash and the crash point, and compares them
// against the published values.
//
//	verifyround -seed <hex> [-hash <hex>] [-crash 3.50]
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/seedchain"
)

func main() {
	seedHex := flag.String("seed", "", "revealed server seed, hex")
	hashHex := flag.String("hash", "", "published commitment hash, hex (optional)")
	crashStr := flag.String("crash", "", "published crash point, e.g. 3.50 (optional)")
	flag.Parse()

	if *seedHex == "" {
		flag.Usage()
		os.Exit(2)
	}

	seed, err := hex.DecodeString(*seedHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid seed hex: %v\n", err)
		os.Exit(2)
	}

	hash := seedchain.HashSeed(seed)
	crash := engine.DeriveCrashPoint(seed, nil)
	crashOut := decimal.New(crash, -2).StringFixed(2)

	fmt.Printf("seed hash:   %s\n", hex.EncodeToString(hash))
	fmt.Printf("crash point: %sx\n", crashOut)

	ok := true
	if *hashHex != "" {
		want, err := hex.DecodeString(*hashHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid hash hex: %v\n", err)
			os.Exit(2)
		}
		if bytes.Equal(hash, want) {
			fmt.Println("commitment:  MATCH")
		} else {
			fmt.Println("commitment:  MISMATCH")
			ok = false
		}
	}

	if *crashStr != "" {
		want, err := decimal.NewFromString(*crashStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid crash point: %v\n", err)
			os.Exit(2)
		}
		if decimal.New(crash, -2).Equal(want) {
			fmt.Println("crash point: MATCH")
		} else {
			fmt.Println("crash point: MISMATCH")
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
}
