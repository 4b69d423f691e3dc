package segcache

import "github.com/discochess/cachesim/internal/request"

type slotState uint8

const (
	// slotEmpty is an unused tail slot.
	slotEmpty slotState = iota
	// slotLive holds an in-cache object.
	slotLive
	// slotGhost holds an evicted object of a training segment. Its
	// hashtable entry is kept so later requests can credit the segment.
	slotGhost
	// slotDead holds a removed, expired or relocated object.
	slotDead
)

// Object is one cached entry. Objects live inside their segment's slot
// array and never outlive it.
type Object struct {
	ID              uint64
	Size            int64
	Freq            int32
	LastAccessVtime int64
	LastAccessRtime int64
	CreateRtime     int64
	// NextAccessVtime is the oracle hint of the latest request, or
	// request.NeverAccessed.
	NextAccessVtime int64
	// ExpireRtime is zero when the object has no TTL.
	ExpireRtime int64

	seg   segID
	pos   int32
	state slotState

	// active is set on the first hit since the object entered its segment.
	active bool
	// seenAfterSnapshot is set once the object has credited its training
	// segments.
	seenAfterSnapshot bool
	// trainSeg/trainUID reference the training segment the object was
	// copied out of by a merge, if any.
	trainSeg segID
	trainUID int64
}

// InCache reports whether the object is resident.
func (o *Object) InCache() bool {
	return o.state == slotLive
}

func (o *Object) expired(rtime int64) bool {
	return o.ExpireRtime > 0 && rtime >= o.ExpireRtime
}

// fill initializes a fresh slot from a request.
func (o *Object) fill(req *request.Request, size, vtime int64, seg segID, pos int) {
	*o = Object{
		ID:              req.ID,
		Size:            size,
		LastAccessVtime: vtime,
		LastAccessRtime: req.Time,
		CreateRtime:     req.Time,
		NextAccessVtime: nextAccess(req),
		seg:             seg,
		pos:             int32(pos),
		state:           slotLive,
		trainSeg:        noSeg,
	}
	if req.TTL > 0 {
		o.ExpireRtime = req.Time + req.TTL
	}
}

func nextAccess(req *request.Request) int64 {
	if req.HasOracle() {
		return req.NextAccessVtime
	}
	return request.NeverAccessed
}
