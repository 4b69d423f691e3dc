package trace

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/discochess/cachesim/internal/request"
)

// CSVOptions selects the columns of a delimited trace. Columns are 1-based;
// zero means the column is absent.
type CSVOptions struct {
	Delimiter rune
	HasHeader bool

	TimeCol        int
	IDCol          int
	SizeCol        int
	OpCol          int
	TTLCol         int
	NamespaceCol   int
	ContentTypeCol int
	NextCol        int
}

// DefaultCSVOptions reads "time,id,size" without a header.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter: ',',
		TimeCol:   1,
		IDCol:     2,
		SizeCol:   3,
	}
}

// ParseCSVOptions overlays comma-separated key=value pairs, for example
// "time-col=1,obj-id-col=2,obj-size-col=3,has-header=true,delimiter=\t",
// on the defaults.
func ParseCSVOptions(s string) (CSVOptions, error) {
	opts := DefaultCSVOptions()
	if strings.TrimSpace(s) == "" {
		return opts, nil
	}
	cols := map[string]*int{
		"time-col":         &opts.TimeCol,
		"obj-id-col":       &opts.IDCol,
		"obj-size-col":     &opts.SizeCol,
		"op-col":           &opts.OpCol,
		"ttl-col":          &opts.TTLCol,
		"namespace-col":    &opts.NamespaceCol,
		"content-type-col": &opts.ContentTypeCol,
		"next-access-col":  &opts.NextCol,
	}
	for _, kv := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return opts, fmt.Errorf("trace: csv option %q is not key=value", kv)
		}
		key = strings.ReplaceAll(key, "_", "-")
		switch key {
		case "has-header":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return opts, fmt.Errorf("trace: csv option %s: %w", key, err)
			}
			opts.HasHeader = b
		case "delimiter":
			d, err := parseDelimiter(value)
			if err != nil {
				return opts, err
			}
			opts.Delimiter = d
		default:
			col, ok := cols[key]
			if !ok {
				return opts, fmt.Errorf("trace: unknown csv option %q", key)
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("trace: csv option %s=%q is not a column number", key, value)
			}
			*col = n
		}
	}
	return opts, opts.validate()
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	case "space":
		return ' ', nil
	}
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 || n != len(s) {
		return 0, fmt.Errorf("trace: delimiter %q is not a single character", s)
	}
	return r, nil
}

func (o CSVOptions) validate() error {
	if o.IDCol <= 0 {
		return errors.New("trace: csv id column is required")
	}
	if o.Delimiter == 0 || o.Delimiter == '"' || o.Delimiter == '\n' {
		return fmt.Errorf("trace: invalid csv delimiter %q", o.Delimiter)
	}
	return nil
}

// CSVReader decodes delimited text traces. Numeric ids are used as is;
// any other id is hashed with xxhash.
type CSVReader struct {
	data []byte
	opts CSVOptions

	r    *csv.Reader
	n    int64
	line int
}

// Compile-time check that CSVReader implements Reader.
var _ Reader = (*CSVReader)(nil)

// NewCSVReader returns a reader over data.
func NewCSVReader(data []byte, opts CSVOptions) (*CSVReader, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	r := &CSVReader{data: data, opts: opts}
	r.Reset()
	return r, nil
}

// Reset rewinds to the first record.
func (r *CSVReader) Reset() {
	r.r = csv.NewReader(bytes.NewReader(r.data))
	r.r.Comma = r.opts.Delimiter
	r.r.FieldsPerRecord = -1
	r.r.ReuseRecord = true
	r.r.TrimLeadingSpace = true
	r.n, r.line = 0, 0
}

// Clone returns a reader over the same buffer.
func (r *CSVReader) Clone() Reader {
	c := &CSVReader{data: r.data, opts: r.opts}
	c.Reset()
	return c
}

// Read decodes the next record.
func (r *CSVReader) Read(req *request.Request) error {
	for {
		rec, err := r.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		r.line++
		if r.line == 1 && r.opts.HasHeader {
			continue
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		if err := r.decode(rec, req); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrCorrupt, r.line, err)
		}
		return nil
	}
}

func (r *CSVReader) decode(rec []string, req *request.Request) error {
	field := func(col int) (string, bool) {
		if col <= 0 || col > len(rec) {
			return "", false
		}
		return rec[col-1], true
	}

	id, ok := field(r.opts.IDCol)
	if !ok {
		return fmt.Errorf("missing id column %d", r.opts.IDCol)
	}

	r.n++
	req.Reset()
	req.Vtime = r.n
	req.Size = 1

	if v, err := strconv.ParseUint(id, 10, 64); err == nil {
		req.ID = v
	} else {
		req.ID = xxhash.Sum64String(id)
	}

	var err error
	if s, ok := field(r.opts.TimeCol); ok {
		if req.Time, err = parseInt(s); err != nil {
			return fmt.Errorf("time: %w", err)
		}
	}
	if s, ok := field(r.opts.SizeCol); ok {
		if req.Size, err = parseInt(s); err != nil {
			return fmt.Errorf("size: %w", err)
		}
	}
	if s, ok := field(r.opts.TTLCol); ok && s != "" {
		if req.TTL, err = parseInt(s); err != nil {
			return fmt.Errorf("ttl: %w", err)
		}
	}
	if s, ok := field(r.opts.NextCol); ok {
		next, err := parseInt(s)
		if err != nil {
			return fmt.Errorf("next access: %w", err)
		}
		if next >= 0 {
			req.NextAccessVtime = next
		}
	}
	if s, ok := field(r.opts.OpCol); ok {
		req.Op = request.ParseOp(s)
	}
	if s, ok := field(r.opts.NamespaceCol); ok {
		req.Namespace = s
	}
	if s, ok := field(r.opts.ContentTypeCol); ok {
		ct, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return fmt.Errorf("content type: %w", err)
		}
		req.ContentType = uint8(ct)
	}
	return nil
}

// parseInt accepts integers and the fractional timestamps some traces carry.
func parseInt(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
