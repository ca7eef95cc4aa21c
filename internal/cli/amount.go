package cli

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/clawchain/clawmarket/internal/domain"
)

// parseAmount reads a human amount such as "12.5" into base units, shifting
// by the given number of decimal places. Fractions of a base unit are rejected.
func parseAmount(s string, decimals int) (domain.Balance, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	d = d.Shift(int32(decimals))
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", s)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, decimals)
	}
	if !d.BigInt().IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: too large", s)
	}
	return domain.Balance(d.BigInt().Uint64()), nil
}

// formatAmount renders base units with the given number of decimal places.
func formatAmount(b domain.Balance, decimals int) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(b)), 0).Shift(-int32(decimals))
	return d.StringFixed(int32(decimals))
}

func amountArg(s string) (domain.Balance, error) {
	return parseAmount(s, viper.GetInt("decimals"))
}

func amountStr(b domain.Balance) string {
	return formatAmount(b, viper.GetInt("decimals"))
}
