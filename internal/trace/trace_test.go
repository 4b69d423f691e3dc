package trace

import (
	"errors"
	"io"
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/discochess/cachesim/internal/request"
)

func readAll(t *testing.T, r Reader) []request.Request {
	t.Helper()
	var out []request.Request
	err := ForEach(r, func(req *request.Request) error {
		out = append(out, *req)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	return out
}

func TestBinaryRoundTrip(t *testing.T) {
	in := []request.Request{
		{Time: 1, ID: 7, Size: 100, NextAccessVtime: 3},
		{Time: 1, ID: 8, Size: 200, NextAccessVtime: request.NeverAccessed},
		{Time: 2, ID: 7, Size: 100, NextAccessVtime: request.NeverAccessed},
	}
	var buf []byte
	for i := range in {
		var err error
		if buf, err = AppendRecord(buf, &in[i]); err != nil {
			t.Fatalf("AppendRecord() error = %v", err)
		}
	}
	if len(buf) != 3*RecordSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), 3*RecordSize)
	}

	r, err := NewBinaryReader(buf)
	if err != nil {
		t.Fatalf("NewBinaryReader() error = %v", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	got := readAll(t, r)
	for i, req := range got {
		want := in[i]
		if req.Vtime != int64(i+1) || req.Time != want.Time || req.ID != want.ID ||
			req.Size != want.Size || req.NextAccessVtime != want.NextAccessVtime {
			t.Errorf("request %d = %+v, want %+v at vtime %d", i, req, want, i+1)
		}
	}

	var req request.Request
	if err := r.Read(&req); !errors.Is(err, io.EOF) {
		t.Errorf("Read() past end error = %v, want io.EOF", err)
	}
}

func TestNewBinaryReader_Truncated(t *testing.T) {
	if _, err := NewBinaryReader(make([]byte, RecordSize+3)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("NewBinaryReader() error = %v, want ErrCorrupt", err)
	}
}

func TestAppendRecord_Overflow(t *testing.T) {
	if _, err := AppendRecord(nil, &request.Request{Size: 1 << 40}); err == nil {
		t.Error("AppendRecord() with 40-bit size succeeded, want error")
	}
}

func TestCloneOwnsCursor(t *testing.T) {
	buf, err := Generate(GenerateConfig{
		Requests: 100, Objects: 10, Alpha: 1.2, V: 1,
		MinSize: 1, MaxSize: 10, RequestsPerSecond: 10, Seed: 3,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	r, _ := NewBinaryReader(buf)

	var req request.Request
	for i := 0; i < 10; i++ {
		if err := r.Read(&req); err != nil {
			t.Fatal(err)
		}
	}
	c := r.Clone()
	var first request.Request
	if err := c.Read(&first); err != nil {
		t.Fatal(err)
	}
	if first.Vtime != 1 {
		t.Errorf("clone's first Vtime = %d, want 1", first.Vtime)
	}
	if err := r.Read(&req); err != nil || req.Vtime != 11 {
		t.Errorf("original Vtime after clone = %d (err %v), want 11", req.Vtime, err)
	}
}

func TestCSVReader(t *testing.T) {
	data := []byte("time,key,size,op,ns\n" +
		"10,42,100,get,a\n" +
		"11.5,user:9,200,set,b\n" +
		"12,42,100,delete,a\n")
	opts, err := ParseCSVOptions("has-header=true,op-col=4,namespace-col=5")
	if err != nil {
		t.Fatalf("ParseCSVOptions() error = %v", err)
	}
	r, err := NewCSVReader(data, opts)
	if err != nil {
		t.Fatalf("NewCSVReader() error = %v", err)
	}
	got := readAll(t, r)
	if len(got) != 3 {
		t.Fatalf("read %d requests, want 3", len(got))
	}

	tests := []struct {
		vtime, time int64
		id          uint64
		size        int64
		op          request.Op
		ns          string
	}{
		{1, 10, 42, 100, request.OpGet, "a"},
		{2, 11, xxhash.Sum64String("user:9"), 200, request.OpSet, "b"},
		{3, 12, 42, 100, request.OpDelete, "a"},
	}
	for i, tt := range tests {
		req := got[i]
		if req.Vtime != tt.vtime || req.Time != tt.time || req.ID != tt.id ||
			req.Size != tt.size || req.Op != tt.op || req.Namespace != tt.ns {
			t.Errorf("request %d = %+v, want %+v", i, req, tt)
		}
		if req.HasOracle() {
			t.Errorf("request %d has an oracle hint", i)
		}
	}

	// Reset replays from the first data row.
	again := readAll(t, r)
	if len(again) != 3 || again[0].ID != 42 {
		t.Errorf("after reset read %d requests, first id %d", len(again), again[0].ID)
	}
}

func TestCSVReader_Corrupt(t *testing.T) {
	r, _ := NewCSVReader([]byte("1,2,abc\n"), DefaultCSVOptions())
	var req request.Request
	if err := r.Read(&req); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Read() error = %v, want ErrCorrupt", err)
	}
}

func TestParseCSVOptions(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		check   func(CSVOptions) bool
	}{
		{"", false, func(o CSVOptions) bool { return o == DefaultCSVOptions() }},
		{`delimiter=\t,obj_id_col=1,time-col=0,obj-size-col=2`, false, func(o CSVOptions) bool {
			return o.Delimiter == '\t' && o.IDCol == 1 && o.TimeCol == 0 && o.SizeCol == 2
		}},
		{"next-access-col=4,ttl-col=5", false, func(o CSVOptions) bool { return o.NextCol == 4 && o.TTLCol == 5 }},
		{"obj-id-col=0", true, nil},
		{"bogus=1", true, nil},
		{"time-col", true, nil},
		{"delimiter=ab", true, nil},
	}
	for _, tt := range tests {
		got, err := ParseCSVOptions(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCSVOptions(%q) error = %v, wantErr %t", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && !tt.check(got) {
			t.Errorf("ParseCSVOptions(%q) = %+v", tt.in, got)
		}
	}
}

func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"traces/wiki.oracleGeneral.zst", FormatOracleGeneral, false},
		{"trace.bin", FormatOracleGeneral, false},
		{"cdn.csv.gz", FormatCSV, false},
		{"twitter.txt", FormatCSV, false},
		{"trace.parquet", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromName(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFromName(%q) = %q, %v, want %q", tt.name, got, err, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(nil, "parquet", CSVOptions{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Open(parquet) error = %v, want ErrUnknownFormat", err)
	}
	r, err := Open([]byte("1,2,3\n"), FormatCSV, DefaultCSVOptions())
	if err != nil {
		t.Fatalf("Open(csv) error = %v", err)
	}
	if got := readAll(t, r); len(got) != 1 || got[0].ID != 2 || got[0].Size != 3 {
		t.Errorf("Open(csv) read %+v", got)
	}
}
