package explorer

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// QueryKind classifies free-text search input.
type QueryKind int

const (
	QueryInvalid QueryKind = iota
	QueryHash
	QueryAddress
)

// addressPatterns are btc legacy, btc bech32, ltc, doge, dash and bch
// cashaddr, in that order.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`),
	regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`),
	regexp.MustCompile(`^[LM][a-km-zA-HJ-NP-Z1-9]{26,33}$`),
	regexp.MustCompile(`^D[5-9A-HJ-NP-U][1-9A-HJ-NP-Za-km-z]{32}$`),
	regexp.MustCompile(`^X[1-9A-HJ-NP-Za-km-z]{33}$`),
	regexp.MustCompile(`^(bitcoincash:)?[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{42}$`),
}

// IsHash reports whether s is a 64 character hex string, the shape shared by
// txids and block hashes.
func IsHash(s string) bool {
	if len(s) != chainhash.MaxHashStringSize {
		return false
	}
	_, err := chainhash.NewHashFromStr(s)
	return err == nil
}

// IsValidAddress reports whether s matches any supported address format.
func IsValidAddress(s string) bool {
	for _, re := range addressPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ClassifyQuery trims q and decides how search should treat it.
func ClassifyQuery(q string) QueryKind {
	q = strings.TrimSpace(q)
	switch {
	case IsHash(q):
		return QueryHash
	case IsValidAddress(q):
		return QueryAddress
	default:
		return QueryInvalid
	}
}
