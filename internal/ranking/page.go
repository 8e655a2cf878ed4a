package ranking

import (
	"math"

	"github.com/onnwee/citypulse/internal/item"
)

// categoryCap is ceil(pageSize / divisor).
func categoryCap(pageSize, divisor int) int {
	if divisor < 1 {
		divisor = 1
	}
	return (pageSize + divisor - 1) / divisor
}

// explorationSlots rounds pageSize*fraction half up.
func explorationSlots(pageSize int, fraction float64) int {
	k := int(math.Floor(float64(pageSize)*fraction + 0.5))
	if k < 0 {
		return 0
	}
	if k > pageSize {
		return pageSize
	}
	return k
}

// explorationPositions spreads k slots evenly over a page of n: slot j lands
// at (j+1)*(n/k)-1, so one pick in ten lands last.
func explorationPositions(n, k int) []int {
	if k <= 0 {
		return nil
	}
	step := n / k
	if step < 1 {
		step = 1
	}
	pos := make([]int, k)
	for j := range pos {
		pos[j] = (j+1)*step - 1
	}
	return pos
}

// pageBuilder assembles pages from a score-ordered pool. Items are consumed
// as they are placed, so pages never repeat an item.
type pageBuilder struct {
	pool        []*Ranked // score order
	exploration []*Ranked // popularity order, off-profile only
	used        map[string]bool

	size           int
	maxPerCategory int
	slots          int
	positions      []int
}

func newPageBuilder(pool, exploration []*Ranked, size, capPerCategory, slots int) *pageBuilder {
	return &pageBuilder{
		pool:           pool,
		exploration:    exploration,
		used:           make(map[string]bool, len(pool)),
		size:           size,
		maxPerCategory: capPerCategory,
		slots:          slots,
		positions:      explorationPositions(size, slots),
	}
}

func (b *pageBuilder) done() bool {
	return len(b.used) == len(b.pool)
}

// take fills up to n items from src in order, skipping used items and
// categories at their cap. Skipped items stay available for later pages.
func (b *pageBuilder) take(src []*Ranked, n int, counts map[item.Category]int) []*Ranked {
	var out []*Ranked
	for _, r := range src {
		if len(out) == n {
			break
		}
		if b.used[r.Item.ID] || counts[r.Item.Category] >= b.maxPerCategory {
			continue
		}
		b.used[r.Item.ID] = true
		counts[r.Item.Category]++
		out = append(out, r)
	}
	return out
}

// next builds the next page. Primary picks fill size-slots places first,
// exploration picks take the reserved slots, and any slots exploration
// could not fill go back to primary picks. The page can come out short when
// the category cap leaves nothing eligible.
func (b *pageBuilder) next() []Ranked {
	counts := make(map[item.Category]int)

	primary := b.take(b.pool, b.size-b.slots, counts)
	explore := b.take(b.exploration, b.slots, counts)
	if missing := b.size - len(primary) - len(explore); missing > 0 {
		primary = append(primary, b.take(b.pool, missing, counts)...)
	}

	total := len(primary) + len(explore)
	page := make([]Ranked, 0, total)
	pi, ei := 0, 0
	for i := 0; i < total; i++ {
		useExplore := ei < len(explore) && (pi >= len(primary) || b.positions[ei] == i)
		if useExplore {
			r := *explore[ei]
			r.Exploration = true
			page = append(page, r)
			ei++
			continue
		}
		page = append(page, *primary[pi])
		pi++
	}
	return page
}
