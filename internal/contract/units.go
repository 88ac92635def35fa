package contract

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals between wei and ether.
const EtherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// Balance is the contract balance in wei, with its ether rendering for display.
type Balance struct {
	Wei   *big.Int
	Ether string
}

// NewBalance builds a Balance from a wei amount.
func NewBalance(wei *big.Int) Balance {
	if wei == nil {
		wei = new(big.Int)
	}
	return Balance{Wei: new(big.Int).Set(wei), Ether: FormatEther(wei)}
}

// WeiString returns the exact wei amount as a base-10 string.
func (b Balance) WeiString() string {
	if b.Wei == nil {
		return "0"
	}
	return b.Wei.String()
}

// FormatEther renders wei as a decimal ether string. At least one fractional
// digit is kept and trailing zeros are trimmed, so 1e18 renders as "1.0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}

	abs := new(big.Int).Abs(wei)
	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	fracDigits := frac.String()
	if pad := EtherDecimals - len(fracDigits); pad > 0 {
		fracDigits = strings.Repeat("0", pad) + fracDigits
	}
	fracDigits = strings.TrimRight(fracDigits, "0")
	if fracDigits == "" {
		fracDigits = "0"
	}

	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
	}
	return sign + whole.String() + "." + fracDigits
}

// ParseEther converts a decimal ether amount such as "0.05" into wei. The
// conversion is exact; more than 18 fractional digits is an error.
func ParseEther(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("amount %q is negative", amount)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(frac, ".") {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if len(frac) > EtherDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, EtherDecimals)
	}

	digits := whole + frac + strings.Repeat("0", EtherDecimals-len(frac))
	wei, ok := new(big.Int).SetString(strings.TrimLeft(digits, "0"), 10)
	if !ok {
		// all zeros trimmed to ""
		return new(big.Int), nil
	}
	return wei, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
