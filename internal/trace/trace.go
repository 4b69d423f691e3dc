// Package trace reads request traces into request.Request records.
//
// Two formats are understood: the 24-byte oracleGeneral binary record, which
// carries exact next-access hints, and delimited text with configurable
// columns. Readers decode from a shared in-memory buffer; Clone hands a
// worker its own cursor over the same bytes.
package trace

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/discochess/cachesim/internal/request"
)

var (
	// ErrUnknownFormat is returned for a trace format that has no reader.
	ErrUnknownFormat = errors.New("trace: unknown format")

	// ErrCorrupt is returned when a record cannot be decoded.
	ErrCorrupt = errors.New("trace: corrupt record")
)

// Reader yields requests in trace order.
type Reader interface {
	// Read fills req with the next request. It returns io.EOF after the
	// last one.
	Read(req *request.Request) error

	// Reset rewinds the reader to the first request.
	Reset()

	// Clone returns an independent reader positioned at the start of the
	// same trace. The decoded buffer is shared, not copied.
	Clone() Reader
}

// Format names an on-disk trace encoding.
type Format string

const (
	FormatOracleGeneral Format = "oracleGeneral"
	FormatCSV           Format = "csv"
)

// FormatFromName infers the format from a file name, ignoring a trailing
// compression extension.
func FormatFromName(name string) (Format, error) {
	base := path.Base(name)
	for _, ext := range []string{".zst", ".gz"} {
		base = strings.TrimSuffix(base, ext)
	}
	switch ext := path.Ext(base); {
	case strings.EqualFold(ext, ".csv"), strings.EqualFold(ext, ".txt"):
		return FormatCSV, nil
	case strings.Contains(base, "oracleGeneral"), ext == ".bin":
		return FormatOracleGeneral, nil
	default:
		return "", fmt.Errorf("%w: cannot infer from %q", ErrUnknownFormat, name)
	}
}

// Open returns a reader over decoded trace bytes.
func Open(data []byte, format Format, opts CSVOptions) (Reader, error) {
	switch format {
	case FormatOracleGeneral:
		return NewBinaryReader(data)
	case FormatCSV:
		return NewCSVReader(data, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ForEach calls fn for every request of r from the start. The request is
// reused between calls. r is left at the end of the trace.
func ForEach(r Reader, fn func(req *request.Request) error) error {
	r.Reset()
	var req request.Request
	for {
		err := r.Read(&req)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(&req); err != nil {
			return err
		}
	}
}
