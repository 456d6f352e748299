package hexutils

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
)

// IntFromHex parses a 0x-prefixed quantity as int64. The empty string
// parses to 0, matching optional fields in execution payloads.
func IntFromHex(hexNumber string) (int64, error) {
	if len(hexNumber) == 0 {
		return 0, nil
	}
	if !strings.HasPrefix(hexNumber, "0x") {
		return 0, errors.Errorf("quantity '%s' is missing the 0x prefix", hexNumber)
	}
	n, err := strconv.ParseInt(hexNumber[2:], 16, 64)
	if err != nil {
		return 0, errors.Errorf("failed to parse '%s' as int: %w", hexNumber, err)
	}
	return n, nil
}

// BigIntFromHex parses a 0x-prefixed quantity of arbitrary size and
// returns its decimal representation. Used for balances, which overflow
// int64 in wei.
func BigIntFromHex(hexNumber string) (string, error) {
	if len(hexNumber) == 0 {
		return "", nil
	}
	if !strings.HasPrefix(hexNumber, "0x") {
		return "", errors.Errorf("quantity '%s' is missing the 0x prefix", hexNumber)
	}
	n := &big.Int{}
	if _, ok := n.SetString(hexNumber[2:], 16); !ok {
		return "", errors.Errorf("failed to parse '%s' as number", hexNumber)
	}
	return n.Text(10), nil
}
