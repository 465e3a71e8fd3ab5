package simulate

import (
	"fmt"
	"math/rand"
)

// hiddenOrder assigns each of n synthetic tracks a distinct true strength.
// Higher is better.
func hiddenOrder(n int, rng *rand.Rand) (items []string, strength map[string]int) {
	items = make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("track-%03d", i)
	}
	perm := rng.Perm(n)
	strength = make(map[string]int, n)
	for i, id := range items {
		strength[id] = perm[i]
	}
	return items, strength
}

// strongest returns the item with the highest true strength.
func strongest(strength map[string]int) string {
	best, bestS := "", -1
	for id, s := range strength {
		if s > bestS {
			best, bestS = id, s
		}
	}
	return best
}

// KendallTau compares order, best first, with the true strengths. It returns
// a value in [-1, 1] where 1 means every pair is ordered correctly. Items
// absent from strength are ignored.
func KendallTau(order []string, strength map[string]int) float64 {
	known := make([]int, 0, len(order))
	for _, id := range order {
		if s, ok := strength[id]; ok {
			known = append(known, s)
		}
	}
	if len(known) < 2 {
		return 0
	}

	var concordant, discordant int
	for i := 0; i < len(known); i++ {
		for j := i + 1; j < len(known); j++ {
			if known[i] > known[j] {
				concordant++
			} else {
				discordant++
			}
		}
	}
	return float64(concordant-discordant) / float64(concordant+discordant)
}
