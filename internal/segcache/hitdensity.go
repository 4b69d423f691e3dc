package segcache

const (
	// HitProbMaxAge is the number of age classes per histogram.
	HitProbMaxAge = 4096
	// HitProbDecay is the EWMA weight of past intervals.
	HitProbDecay = 0.9

	overflowCoarsenFraction = 0.1
	maxAgeShift             = 40
)

// hitProb is an LHD-style estimator of P(hit | age) for one bucket.
// Ages are virtual-time distances since last access, right-shifted by
// ageShift.
type hitProb struct {
	hits   [HitProbMaxAge]float64
	evicts [HitProbMaxAge]float64

	ewmaHits   [HitProbMaxAge]float64
	ewmaEvicts [HitProbMaxAge]float64

	density  [HitProbMaxAge]float64
	lifetime [HitProbMaxAge]float64

	ageShift uint
	// nOverflow counts events clamped into the last class since the last
	// update; nEvents counts all of them.
	nOverflow     int64
	nEvents       int64
	totalOverflow int64
	nUpdates      int
}

func newHitProb(ageShift uint) *hitProb {
	return &hitProb{ageShift: ageShift}
}

func (h *hitProb) class(age int64) int {
	if age < 0 {
		age = 0
	}
	c := age >> h.ageShift
	if c >= HitProbMaxAge {
		h.nOverflow++
		h.totalOverflow++
		return HitProbMaxAge - 1
	}
	return int(c)
}

func (h *hitProb) onHit(age int64) {
	h.hits[h.class(age)]++
	h.nEvents++
}

func (h *hitProb) onEvict(age int64) {
	h.evicts[h.class(age)]++
	h.nEvents++
}

// warm reports whether at least one update has run.
func (h *hitProb) warm() bool {
	return h.nUpdates > 0
}

// update folds the interval counters into the EWMA and recomputes density
// and expected remaining lifetime for every age class.
func (h *hitProb) update() {
	for a := range h.ewmaHits {
		h.ewmaHits[a] = h.ewmaHits[a]*HitProbDecay + h.hits[a]
		h.ewmaEvicts[a] = h.ewmaEvicts[a]*HitProbDecay + h.evicts[a]
	}
	clear(h.hits[:])
	clear(h.evicts[:])

	var totalHits, totalEvents, lifetimeUnconditioned float64
	for a := HitProbMaxAge - 1; a >= 0; a-- {
		totalHits += h.ewmaHits[a]
		totalEvents += h.ewmaHits[a] + h.ewmaEvicts[a]
		lifetimeUnconditioned += totalEvents

		if totalEvents > 1e-5 {
			h.density[a] = totalHits / lifetimeUnconditioned
			h.lifetime[a] = lifetimeUnconditioned / totalEvents
		} else {
			h.density[a] = 0
			h.lifetime[a] = 0
		}
	}

	if h.nEvents > 0 && float64(h.nOverflow) > overflowCoarsenFraction*float64(h.nEvents) && h.ageShift < maxAgeShift {
		h.ageShift++
	}
	h.nOverflow, h.nEvents = 0, 0
	h.nUpdates++
}

// hitDensity returns the estimated hits per unit of cache-time for an
// object of the given age.
func (h *hitProb) hitDensity(age int64) float64 {
	return h.density[h.peek(age)]
}

// expectedLifetime returns the expected remaining age-classes until the
// next hit or eviction.
func (h *hitProb) expectedLifetime(age int64) float64 {
	return h.lifetime[h.peek(age)]
}

// peek maps an age to its class without counting overflow.
func (h *hitProb) peek(age int64) int {
	if age < 0 {
		age = 0
	}
	c := age >> h.ageShift
	if c >= HitProbMaxAge {
		return HitProbMaxAge - 1
	}
	return int(c)
}
