package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// NumericToCents converts a pgtype.Numeric from a PostgreSQL numeric(18,2)
// column into integer cents. Returns an error if the value is NULL, carries
// more than two fractional digits, or overflows int64.
func NumericToCents(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}

	// pgtype.Numeric stores value as Int * 10^Exp. Cents are Int * 10^(Exp+2).
	bi := new(big.Int).Set(n.Int)
	shift := int64(n.Exp) + 2

	if shift > 0 {
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil)
		bi.Mul(bi, multiplier)
	} else if shift < 0 {
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(-shift), nil)
		rem := new(big.Int)
		bi.QuoRem(bi, divisor, rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("numeric value has more than 2 fractional digits")
		}
	}

	if !bi.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64 cents", bi.String())
	}

	return bi.Int64(), nil
}

// CentsToNumeric converts integer cents to pgtype.Numeric for writing to a
// PostgreSQL numeric(18,2) column.
func CentsToNumeric(cents int64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(cents),
		Exp:              -2,
		NaN:              false,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}
