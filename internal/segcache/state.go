package segcache

const (
	// StateUpdateInterval is the minimum real time between rate updates.
	StateUpdateInterval = 10
	// StateMinVtimeDelta is the minimum number of requests between updates.
	StateMinVtimeDelta = 1000
)

// cacheState tracks the clocks and rolling traffic rates of one cache.
type cacheState struct {
	vtime int64
	rtime int64

	startRtime int64
	started    bool

	nReq, nMiss, nWrite       int64
	nReqBytes, nMissBytes     int64
	nEvictedBytes             int64
	lastRtime, lastVtime      int64
	lastReq, lastMiss, lastWr int64

	reqRate   float64
	writeRate float64
	missRatio float64
}

// advance moves the clocks to the request's timestamps.
func (s *cacheState) advance(vtime, rtime int64) {
	if vtime > s.vtime {
		s.vtime = vtime
	} else {
		s.vtime++
	}
	if !s.started {
		s.started = true
		s.startRtime = rtime
		s.lastRtime = rtime
	}
	if rtime > s.rtime {
		s.rtime = rtime
	}
}

// maybeUpdate recomputes the rates when enough time and requests passed.
func (s *cacheState) maybeUpdate() bool {
	dt := s.rtime - s.lastRtime
	dv := s.vtime - s.lastVtime
	if dt < StateUpdateInterval || dv < StateMinVtimeDelta {
		return false
	}
	dReq := s.nReq - s.lastReq
	s.reqRate = float64(dReq) / float64(dt)
	s.writeRate = float64(s.nWrite-s.lastWr) / float64(dt)
	if dReq > 0 {
		s.missRatio = float64(s.nMiss-s.lastMiss) / float64(dReq)
	}

	s.lastRtime, s.lastVtime = s.rtime, s.vtime
	s.lastReq, s.lastMiss, s.lastWr = s.nReq, s.nMiss, s.nWrite
	return true
}
