package segcache

const (
	// NWindowBuckets is the number of historical buckets per rolling window.
	NWindowBuckets = 8
	nWindows       = 3
	nScalarFeature = 10
	// NFeatures is the width of a segment feature row.
	NFeatures = nScalarFeature + nWindows*NWindowBuckets
)

// windowLengths are the minute, 10-minute and hour windows in seconds.
var windowLengths = [nWindows]int64{60, 600, 3600}

// featureWindows counts hits per window period. Index 0 is the current
// period; higher indices are older.
type featureWindows struct {
	period [nWindows]int64
	hits   [nWindows][NWindowBuckets]float64
}

func (w *featureWindows) reset(rtime int64) {
	for g := range w.period {
		w.period[g] = rtime / windowLengths[g]
	}
	w.hits = [nWindows][NWindowBuckets]float64{}
}

// roll shifts every window forward to rtime.
func (w *featureWindows) roll(rtime int64) {
	for g := range w.period {
		p := rtime / windowLengths[g]
		shift := p - w.period[g]
		if shift <= 0 {
			continue
		}
		w.period[g] = p
		h := &w.hits[g]
		if shift >= NWindowBuckets {
			*h = [NWindowBuckets]float64{}
			continue
		}
		copy(h[shift:], h[:NWindowBuckets-int(shift)])
		for i := int64(0); i < shift; i++ {
			h[i] = 0
		}
	}
}

func (w *featureWindows) hit(rtime int64) {
	w.roll(rtime)
	for g := range w.hits {
		w.hits[g][0]++
	}
}

// prepareRow writes the feature row of seg into dst, which must hold
// NFeatures values. Training rows measure age up to the snapshot.
func prepareRow(seg *Segment, training bool, rtime int64, dst []float64) {
	age := rtime - seg.createRtime
	if training {
		age = seg.snapshotRtime - seg.createRtime
	} else {
		seg.windows.roll(rtime)
	}

	meanSize := 0.0
	if seg.nLive > 0 {
		meanSize = float64(seg.liveBytes) / float64(seg.nLive)
	}

	dst[0] = float64(seg.bucket)
	dst[1] = float64((seg.createRtime / 3600) % 24)
	dst[2] = float64((seg.createRtime / 60) % 60)
	dst[3] = float64(age)
	dst[4] = seg.reqRate
	dst[5] = seg.writeRate
	dst[6] = meanSize
	dst[7] = seg.missRatio
	dst[8] = float64(seg.nHit)
	dst[9] = float64(seg.nActive)

	i := nScalarFeature
	for g := range seg.windows.hits {
		copy(dst[i:i+NWindowBuckets], seg.windows.hits[g][:])
		i += NWindowBuckets
	}
}
