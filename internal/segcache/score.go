package segcache

import (
	"math"

	"github.com/discochess/cachesim/internal/request"
)

const (
	// scoreScale keeps byte-normalized scores away from denormals.
	scoreScale = 1e6
	// freqEpsilon lets never-hit objects be ordered by size.
	freqEpsilon = 0.01
)

// objectScore returns the retention value of obj at (vtime, rtime). Higher
// means more worth keeping. It does not mutate its arguments.
func objectScore(mode ScoreMode, obj *Object, b *Bucket, vtime, rtime int64) float64 {
	if obj.state != slotLive || obj.expired(rtime) {
		return math.Inf(-1)
	}
	size := float64(max(obj.Size, 1))

	switch mode {
	case ScoreFreq:
		return float64(obj.Freq)

	case ScoreFreqAge:
		age := max(rtime-obj.LastAccessRtime, 1)
		return (float64(obj.Freq) + freqEpsilon) / float64(age)

	case ScoreHitDensity:
		if b == nil || b.hitProb == nil || !b.hitProb.warm() {
			return (float64(obj.Freq) + freqEpsilon) * scoreScale / size
		}
		return b.hitProb.hitDensity(vtime-obj.LastAccessVtime) * scoreScale / size

	case ScoreOracle:
		return oracleScore(obj, vtime)

	default:
		return (float64(obj.Freq) + freqEpsilon) * scoreScale / size
	}
}

// oracleScore is scoreScale/(size*distance) to the next access, or 0.
func oracleScore(obj *Object, vtime int64) float64 {
	next := obj.NextAccessVtime
	if next == request.NeverAccessed || next < vtime {
		return 0
	}
	dist := max(next-vtime, 1)
	return scoreScale / (float64(max(obj.Size, 1)) * float64(dist))
}
