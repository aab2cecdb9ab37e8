package version

import (
	"fmt"

	"github.com/roach88/itemsync/internal/item"
	"github.com/roach88/itemsync/internal/store"
)

// Stage records how completely an item was downloaded. Stages are ordered
// Dummy < Quick < Stale < Full; Stale marks an item that was fully
// downloaded once and has since received only a quick update.
type Stage int

const (
	// NoStage: nothing was ever downloaded.
	NoStage Stage = iota
	// Dummy: a placeholder known only by reference.
	Dummy
	// Quick: summary attributes only.
	Quick
	// Stale: was Full, newer data came from a quick update.
	Stale
	// Full: every attribute.
	Full
)

var stageNames = [...]string{"none", "dummy", "quick", "stale", "full"}

func (s Stage) String() string {
	if s >= NoStage && s <= Full {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	for i, n := range stageNames {
		if n == s {
			return Stage(i), nil
		}
	}
	return NoStage, fmt.Errorf("unknown download stage %q", s)
}

// MergeStages combines two marks for the same item: the maximum wins.
func MergeStages(a, b Stage) Stage {
	return max(a, b)
}

// ApplyStage returns the stage after an item at current receives incoming.
// Incoming wins when it is not lower. A Dummy never lowers an existing mark;
// any other lower mark demotes the item to Stale instead of regressing it.
func ApplyStage(current, incoming Stage) Stage {
	switch {
	case incoming >= current:
		return incoming
	case incoming <= Dummy:
		return current
	}
	return Stale
}

// StageOf reads the download stage of id.
func StageOf(r store.Reader, id item.ID) Stage {
	v, ok := r.Value(id, item.DownloadStageAttr.ID)
	if !ok {
		return NoStage
	}
	s, ok := v.(item.Int)
	if !ok {
		return NoStage
	}
	return Stage(s)
}

// SetStage applies incoming to the stored stage of id and returns the result.
func SetStage(tx *store.Tx, id item.ID, incoming Stage) Stage {
	next := ApplyStage(StageOf(tx, id), incoming)
	if next != NoStage {
		tx.Set(id, item.DownloadStageAttr.ID, item.Int(next))
	}
	return next
}
