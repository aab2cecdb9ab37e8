package drain

import (
	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/merge"
	"github.com/roach88/itemsync/internal/store"
)

// Strategies picks the merge strategy for an item.
type Strategies interface {
	For(r store.Reader, id item.ID) merge.AutoMerge
}

// StrategyFunc adapts a function to Strategies.
type StrategyFunc func(r store.Reader, id item.ID) merge.AutoMerge

// For calls f.
func (f StrategyFunc) For(r store.Reader, id item.ID) merge.AutoMerge { return f(r, id) }

// Uniform uses one strategy for every item.
func Uniform(s merge.AutoMerge) Strategies {
	return StrategyFunc(func(store.Reader, item.ID) merge.AutoMerge { return s })
}

func strategyFor(s Strategies, r store.Reader, id item.ID) merge.AutoMerge {
	if s == nil {
		return merge.None
	}
	return s.For(r, id)
}
