package allocator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/jakechorley/spin-wheel/pkg/core/model"
)

var (
	// ErrNoCapacity is returned when no category in the round has remaining quota
	ErrNoCapacity = errors.New("no category has remaining capacity")

	// ErrInvariantViolation is returned when stored counters break a ledger or state invariant.
	// It is never corrected silently.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Weight is a category's selection weight: its remaining capacity in the round
type Weight struct {
	Number    int
	Label     string
	Remaining int
}

// Source supplies uniform random integers in [0, n)
type Source interface {
	IntN(n int) int
}

// RemainingWeights computes the weight of every category that still has capacity,
// ordered by ascending category number. Rows with counts outside [0, max] are reported
// as ErrInvariantViolation.
func RemainingWeights(ledger []model.Category) ([]Weight, error) {
	rows := make([]model.Category, len(ledger))
	copy(rows, ledger)
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Number < rows[j].Number
	})

	weights := make([]Weight, 0, len(rows))
	for i, row := range rows {
		if row.CurrentCount < 0 || row.CurrentCount > row.MaxPerRound {
			return nil, fmt.Errorf("%w: category %d in round %d has count %d outside [0, %d]",
				ErrInvariantViolation, row.Number, row.Round, row.CurrentCount, row.MaxPerRound)
		}
		if i > 0 && rows[i-1].Number == row.Number {
			return nil, fmt.Errorf("%w: category %d appears twice in round %d",
				ErrInvariantViolation, row.Number, row.Round)
		}
		if row.Remaining() <= 0 {
			continue
		}
		weights = append(weights, Weight{
			Number:    row.Number,
			Label:     row.Label,
			Remaining: row.Remaining(),
		})
	}
	return weights, nil
}

// Select draws once over [0, total remaining) and walks the prefix sums in order
// to find the owning category
func Select(weights []Weight, src Source) (Weight, error) {
	total := 0
	for _, w := range weights {
		total += w.Remaining
	}
	if total <= 0 {
		return Weight{}, ErrNoCapacity
	}

	draw := src.IntN(total)
	cumulative := 0
	for _, w := range weights {
		cumulative += w.Remaining
		if draw < cumulative {
			return w, nil
		}
	}

	// Unreachable for a Source honouring [0, n)
	return Weight{}, fmt.Errorf("draw %d out of range [0, %d)", draw, total)
}

// SeededSource returns a goroutine-safe Source with a fixed seed, for reproducible draws
func SeededSource(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// DefaultSource returns the process-wide random source
func DefaultSource() Source {
	return globalSource{}
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n)
}
