package accounting

import (
	"sort"

	"github.com/shopspring/decimal"
)

const DefaultRankingLimit = 5

const (
	MetricQuantity = "quantity"
	MetricProfit   = "profit"
)

type RankingEntry struct {
	Rank   int             `json:"rank"`
	Name   string          `json:"name"`
	Metric string          `json:"metric"`
	Value  decimal.Decimal `json:"value"`
}

type Rankings struct {
	ByQuantity []RankingEntry `json:"by_quantity"`
	ByProfit   []RankingEntry `json:"by_profit"`
}

// Rank orders products by sold quantity and by profit, highest first, and
// keeps the top limit of each. Ties keep first-seen order. Profit is rounded
// to cents before ordering so the listed order matches the listed values.
func Rank(products []ProductTotals, limit int) Rankings {
	if limit < 1 {
		limit = DefaultRankingLimit
	}

	byQty := make([]RankingEntry, 0, len(products))
	byProfit := make([]RankingEntry, 0, len(products))
	seq := make(map[string]int, len(products))
	for _, p := range products {
		seq[p.Name] = p.Seq
		byQty = append(byQty, RankingEntry{Name: p.Name, Metric: MetricQuantity, Value: decimal.NewFromInt(p.Quantity)})
		byProfit = append(byProfit, RankingEntry{Name: p.Name, Metric: MetricProfit, Value: p.Profit.Round(2)})
	}

	return Rankings{
		ByQuantity: topN(byQty, seq, limit),
		ByProfit:   topN(byProfit, seq, limit),
	}
}

func topN(entries []RankingEntry, seq map[string]int, limit int) []RankingEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := entries[i].Value.Cmp(entries[j].Value); cmp != 0 {
			return cmp > 0
		}
		return seq[entries[i].Name] < seq[entries[j].Name]
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
