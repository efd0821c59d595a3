package format

import (
	"fmt"
	"strings"

	"github.com/leeaandrob/xrpdigest/internal/aggregate"
	"github.com/leeaandrob/xrpdigest/internal/source"
)

// Stablecoin formats the tracked stable asset's market snapshot.
func Stablecoin(snap aggregate.Snapshot[*source.Stablecoin]) string {
	if !snap.OK || snap.Value == nil || snap.Value.MarketData == nil {
		return StablecoinUnavailable
	}
	coin := snap.Value
	md := coin.MarketData

	name := coin.Name
	if name == "" {
		name = coin.ID
	}
	if coin.Symbol != "" {
		name = fmt.Sprintf("%s (%s)", name, strings.ToUpper(coin.Symbol))
	}

	lines := []string{name + " market snapshot:"}
	if v, ok := usd(md.CurrentPrice); ok {
		lines = append(lines, fmt.Sprintf("- Price: %s", formatPrice(v)))
	} else {
		lines = append(lines, missing("Price"))
	}
	for _, f := range []struct {
		label string
		value *source.CurrencyValue
	}{
		{"Market cap", md.MarketCap},
		{"24h volume", md.TotalVolume},
		{"TVL", md.TotalValueLocked},
	} {
		if v, ok := usd(f.value); ok {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.label, formatUSD(v)))
		} else {
			lines = append(lines, missing(f.label))
		}
	}
	return block(lines)
}

func usd(v *source.CurrencyValue) (float64, bool) {
	if v == nil || v.USD == nil {
		return 0, false
	}
	return *v.USD, true
}
