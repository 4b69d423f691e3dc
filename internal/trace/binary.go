package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/discochess/cachesim/internal/request"
)

// RecordSize is the length of one oracleGeneral record: u32 timestamp,
// u64 object id, u32 size and i64 next-access vtime, little endian.
const RecordSize = 24

// BinaryReader decodes oracleGeneral records. A negative next-access field
// means the object is not requested again.
type BinaryReader struct {
	data []byte
	pos  int
	n    int64
}

// Compile-time check that BinaryReader implements Reader.
var _ Reader = (*BinaryReader)(nil)

// NewBinaryReader validates the buffer length and returns a reader over it.
func NewBinaryReader(data []byte) (*BinaryReader, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCorrupt, len(data), RecordSize)
	}
	return &BinaryReader{data: data}, nil
}

// Len returns the number of records in the trace.
func (r *BinaryReader) Len() int {
	return len(r.data) / RecordSize
}

// Read decodes the next record.
func (r *BinaryReader) Read(req *request.Request) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	rec := r.data[r.pos : r.pos+RecordSize]
	r.pos += RecordSize
	r.n++

	req.Reset()
	req.Vtime = r.n
	req.Time = int64(binary.LittleEndian.Uint32(rec[0:4]))
	req.ID = binary.LittleEndian.Uint64(rec[4:12])
	req.Size = int64(binary.LittleEndian.Uint32(rec[12:16]))
	if next := int64(binary.LittleEndian.Uint64(rec[16:24])); next >= 0 {
		req.NextAccessVtime = next
	}
	return nil
}

// Reset rewinds to the first record.
func (r *BinaryReader) Reset() {
	r.pos, r.n = 0, 0
}

// Clone returns a reader over the same buffer.
func (r *BinaryReader) Clone() Reader {
	return &BinaryReader{data: r.data}
}

// AppendRecord encodes req as an oracleGeneral record. Requests without a
// next-access hint are written with -1.
func AppendRecord(dst []byte, req *request.Request) ([]byte, error) {
	if req.Time < 0 || req.Time > math.MaxUint32 {
		return dst, fmt.Errorf("trace: timestamp %d does not fit in 32 bits", req.Time)
	}
	if req.Size < 0 || req.Size > math.MaxUint32 {
		return dst, fmt.Errorf("trace: size %d does not fit in 32 bits", req.Size)
	}
	next := int64(-1)
	if req.NextAccessVtime != request.NeverAccessed {
		next = req.NextAccessVtime
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(req.Time))
	dst = binary.LittleEndian.AppendUint64(dst, req.ID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(req.Size))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(next))
	return dst, nil
}
