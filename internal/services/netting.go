package services

import (
	"sort"

	"github.com/liquibridge/backend/internal/models"
)

// poolPair is an unordered pool pair in canonical (lexicographic) order.
type poolPair struct {
	A string
	B string
}

func canonicalPair(x, y string) poolPair {
	if x < y {
		return poolPair{A: x, B: y}
	}
	return poolPair{A: y, B: x}
}

// computeNetPositions nets open obligations per canonical pair. A positive
// net means A owes B; negative means B owes A. Opposite-direction
// obligations between the same two pools cancel before any money moves,
// which is the whole point: gross exposure is always >= net exposure.
func computeNetPositions(obligations []models.Obligation) (map[poolPair]int64, map[poolPair][]string) {
	nets := make(map[poolPair]int64)
	idsPerPair := make(map[poolPair][]string)

	for _, o := range obligations {
		pair := canonicalPair(o.FromPool, o.ToPool)
		if o.FromPool == pair.A {
			nets[pair] += o.AmountUSDCents
		} else {
			nets[pair] -= o.AmountUSDCents
		}
		idsPerPair[pair] = append(idsPerPair[pair], o.ID)
	}
	return nets, idsPerPair
}

// sortedPairs returns the pairs in a stable order so settlement output is
// deterministic.
func sortedPairs(nets map[poolPair]int64) []poolPair {
	pairs := make([]poolPair, 0, len(nets))
	for pair := range nets {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

func absCents(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// instructionFor resolves a non-zero net into a directional settlement
// transfer.
func instructionFor(pair poolPair, net int64) models.SettlementInstruction {
	if net > 0 {
		return models.SettlementInstruction{Payer: pair.A, Payee: pair.B, AmountUSDCents: net}
	}
	return models.SettlementInstruction{Payer: pair.B, Payee: pair.A, AmountUSDCents: -net}
}
