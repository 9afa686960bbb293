package explorer

import (
	"math"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/brojonat/txexplorer/client"
)

const siteName = "Transaction.st"

// Amount is a formatted coin amount with an optional USD equivalent.
type Amount struct {
	Value string
	Unit  string
	USD   string
}

func (a Amount) String() string {
	s := a.Value + " " + a.Unit
	if a.USD != "" {
		s += " (" + a.USD + ")"
	}
	return s
}

// FormatAmount fixes amount to 8 decimals, trims trailing fractional zeros
// and adds a USD equivalent when a non-zero rate for the network is known
// and the amount is non-zero.
func FormatAmount(amount decimal.Decimal, network Network, rates client.Rates) Amount {
	a := Amount{
		Value: trimFraction(amount.StringFixed(8)),
		Unit:  network.Upper(),
	}
	if rate, ok := rates[string(network)]; ok && !rate.IsZero() && !amount.IsZero() {
		a.USD = FormatUSD(amount.Mul(rate))
	}
	return a
}

// FormatUSD renders d as dollars with thousands separators and two
// decimals, e.g. "$30,000.00".
func FormatUSD(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	cents := fixed[strings.IndexByte(fixed, '.'):]
	return sign + "$" + humanize.Comma(d.Truncate(0).IntPart()) + cents
}

// FeeRate renders a transaction's fee rate. Dogecoin is quoted per kilobyte
// as fee*1e6/size, so a 0.0001 DOGE fee on 250 bytes reads "0.40 DOGE/KB".
// Every other network converts the fee to its smallest unit and divides by
// the size in bytes.
func FeeRate(fee decimal.Decimal, size int64, network Network) string {
	if size <= 0 {
		return "N/A"
	}
	bytes := decimal.NewFromInt(size)

	if network == DOGE {
		return fee.Mul(decimal.NewFromInt(1_000_000)).Div(bytes).StringFixed(2) + " DOGE/KB"
	}

	f, _ := fee.Float64()
	sats, err := btcutil.NewAmount(f)
	if err != nil {
		return "N/A"
	}
	rate := decimal.NewFromInt(int64(sats)).Div(bytes)
	return trimFraction(rate.StringFixed(2)) + " " + feeUnit(network)
}

func feeUnit(n Network) string {
	switch n {
	case LTC:
		return "lit/byte"
	case DASH:
		return "duffs/byte"
	default:
		return "sats/byte"
	}
}

// FormatNumber rounds v and adds thousands separators. Zero is "N/A".
func FormatNumber(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return humanize.Comma(int64(math.Round(v)))
}

// FormatBytes renders a byte count in IEC units. Zero is "N/A".
func FormatBytes(b uint64) string {
	if b == 0 {
		return "N/A"
	}
	return humanize.IBytes(b)
}

// FormatBlockTime renders a unix timestamp as a UTC clock time. Zero is "".
func FormatBlockTime(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("15:04:05")
}

// FormatTime renders a unix timestamp as a full UTC date and time.
func FormatTime(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// ShortID returns the first 8 characters of id followed by "...".
func ShortID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return id + "..."
}

// Title is the page title for a route.
func Title(r Route) string {
	switch r.Kind {
	case RouteHome:
		return siteName + " - Block Explorer"
	case RouteTransaction:
		return "Transaction " + ShortID(r.ID) + " - " + siteName
	case RouteBlock:
		return "Block " + ShortID(r.ID) + " - " + siteName
	case RouteAddress:
		return "Address " + ShortID(r.ID) + " - " + siteName
	default:
		return "Page Not Found - " + siteName
	}
}

// Name is the display name of the network.
func (n Network) Name() string {
	switch n {
	case BTC:
		return "Bitcoin"
	case BCH:
		return "Bitcoin Cash"
	case LTC:
		return "Litecoin"
	case DOGE:
		return "Dogecoin"
	case DASH:
		return "Dash"
	default:
		return n.Upper()
	}
}

func trimFraction(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}
