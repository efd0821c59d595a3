package format

import (
	"fmt"
	"sort"

	"github.com/leeaandrob/xrpdigest/internal/aggregate"
	"github.com/leeaandrob/xrpdigest/internal/source"
)

const dropsPerXRP = 1_000_000

// networkMetric names a metric we surface and how to label it.
type networkMetric struct {
	Key   string
	Label string
}

// networkMetrics is the fixed set and order of ledger statistics in the block.
var networkMetrics = []networkMetric{
	{Key: "transactions", Label: "Transactions"},
	{Key: "payments", Label: "Payments"},
	{Key: "accounts_created", Label: "New accounts"},
	{Key: "active_accounts", Label: "Active accounts"},
	{Key: "ledger_count", Label: "Ledgers closed"},
	{Key: "tx_fees", Label: "Fees burned (XRP)"},
}

// OnChain formats network metrics and the escrow listing.
func OnChain(metrics aggregate.Snapshot[source.NetworkMetrics], escrows aggregate.Snapshot[[]source.Escrow]) string {
	hasMetrics := metrics.OK && len(metrics.Value) > 0
	hasEscrows := escrows.OK && escrows.Value != nil
	if !hasMetrics && !hasEscrows {
		return OnChainUnavailable
	}

	lines := []string{"XRP Ledger network activity:"}
	if hasMetrics {
		for _, m := range networkMetrics {
			v, ok := metrics.Value.Float(m.Key)
			if !ok {
				lines = append(lines, missing(m.Label))
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", m.Label, formatAmount(v)))
		}
	} else {
		lines = append(lines, missing("Network metrics"))
	}

	lines = append(lines, "Escrow:")
	if hasEscrows {
		lines = append(lines, escrowLines(escrows.Value)...)
	} else {
		lines = append(lines, missing("Escrow listing"))
	}
	return block(lines)
}

type escrowAmount struct {
	destination string
	xrp         float64
}

func escrowLines(escrows []source.Escrow) []string {
	var (
		parsed []escrowAmount
		total  float64
	)
	for _, e := range escrows {
		drops, err := e.Amount.Float64()
		if err != nil {
			continue
		}
		xrp := drops / dropsPerXRP
		total += xrp
		parsed = append(parsed, escrowAmount{destination: e.Destination, xrp: xrp})
	}

	lines := []string{
		fmt.Sprintf("- Open escrows: %d", len(escrows)),
		fmt.Sprintf("- Total locked: %s XRP", formatAmount(total)),
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].xrp > parsed[j].xrp })
	for i, p := range parsed {
		if i == 3 {
			break
		}
		dest := p.destination
		if dest == "" {
			dest = "unknown destination"
		}
		lines = append(lines, fmt.Sprintf("  - %s XRP to %s", formatAmount(p.xrp), dest))
	}
	return lines
}

// RichList formats the top holders snapshot.
func RichList(snap aggregate.Snapshot[[]source.Holder]) string {
	if !snap.OK || len(snap.Value) == 0 {
		return RichListUnavailable
	}

	holders := snap.Value
	if len(holders) > 10 {
		holders = holders[:10]
	}

	lines := []string{fmt.Sprintf("Top %d XRP holders:", len(holders))}
	var total float64
	for i, h := range holders {
		name := h.Account
		if h.Name != nil && h.Name.Name != "" {
			name = fmt.Sprintf("%s (%s)", h.Account, h.Name.Name)
		}
		if name == "" {
			name = "unknown account"
		}

		bal, err := h.Balance.Float64()
		if err != nil {
			lines = append(lines, fmt.Sprintf("%d. %s: balance %s", i+1, name, unavailable))
			continue
		}
		total += bal
		lines = append(lines, fmt.Sprintf("%d. %s: %s XRP", i+1, name, formatAmount(bal)))
	}
	lines = append(lines, fmt.Sprintf("Combined: %s XRP", formatAmount(total)))
	return block(lines)
}
