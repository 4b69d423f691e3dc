// Package request defines the request record replayed against caches.
package request

import "math"

// NeverAccessed marks a request whose object is not requested again.
const NeverAccessed int64 = math.MaxInt64

// Op is the operation carried by a request.
type Op uint8

// Operations understood by the caches. Traces without an operation column
// replay every request as OpGet.
const (
	OpGet Op = iota
	OpSet
	OpDelete
)

// String returns the lower-case operation name.
func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOp maps an operation name to an Op. Unknown names map to OpGet.
func ParseOp(s string) Op {
	switch s {
	case "set", "SET", "put", "PUT", "write":
		return OpSet
	case "delete", "DELETE", "del", "DEL":
		return OpDelete
	default:
		return OpGet
	}
}

// Request is one trace record.
type Request struct {
	// Vtime is the logical time: the 1-based index of the request in the trace.
	Vtime int64
	// Time is the real timestamp of the request in seconds.
	Time int64

	ID   uint64
	Size int64
	Op   Op
	// TTL in seconds; zero means no expiry.
	TTL int64

	// NextAccessVtime is the Vtime of the next request for the same object,
	// or NeverAccessed. Only oracle traces carry it.
	NextAccessVtime int64

	// Namespace and ContentType drive the tenant and content-type bucketing.
	Namespace   string
	ContentType uint8
}

// Reset clears r so it can be reused by a reader.
func (r *Request) Reset() {
	*r = Request{NextAccessVtime: NeverAccessed}
}

// HasOracle reports whether the request carries a future-access hint.
func (r *Request) HasOracle() bool {
	return r.NextAccessVtime != NeverAccessed && r.NextAccessVtime > 0
}
