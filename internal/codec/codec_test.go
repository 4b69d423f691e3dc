package codec

import (
	"bytes"
	"testing"
)

func TestForName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"wiki.oracleGeneral.zst", "zst"},
		{"cdn.csv.gz", "gz"},
		{"trace.CSV.GZ", "gz"},
		{"trace.oracleGeneral", ""},
		{"trace", ""},
	}
	for _, tt := range tests {
		if got := ForName(tt.name).Extension(); got != tt.want {
			t.Errorf("ForName(%q).Extension() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":  {},
		"short":  []byte("1,42,100\n2,43,200\n"),
		"large":  bytes.Repeat([]byte("ABCDEFGHIJ"), 10000),
		"binary": {0, 1, 2, 255, 254, 0, 0, 0},
	}
	for _, c := range []Codec{NewZstd(), NewGzip(), None{}} {
		for label, in := range inputs {
			enc, err := Encode(c, in)
			if err != nil {
				t.Fatalf("%s Encode(%s) error = %v", name(c), label, err)
			}
			dec, err := Decode(c, enc)
			if err != nil {
				t.Fatalf("%s Decode(%s) error = %v", name(c), label, err)
			}
			if !bytes.Equal(dec, in) {
				t.Errorf("%s round trip of %s: got %d bytes, want %d", name(c), label, len(dec), len(in))
			}
			if label == "large" && c.Extension() != "" && len(enc) >= len(in) {
				t.Errorf("%s did not compress repetitive data: %d >= %d", name(c), len(enc), len(in))
			}
		}
	}
}

func TestDecode_InvalidData(t *testing.T) {
	for _, c := range []Codec{NewZstd(), NewGzip()} {
		if _, err := Decode(c, []byte("not compressed at all")); err == nil {
			t.Errorf("%s Decode(garbage) succeeded, want error", name(c))
		}
	}
}

func TestStreamingReaderMatchesDecode(t *testing.T) {
	in := bytes.Repeat([]byte("0123456789"), 512)
	enc, err := Encode(NewZstd(), in)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewZstd().Reader(bytes.NewReader(enc))
	if err != nil {
		t.Fatalf("Reader() error = %v", err)
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), in) {
		t.Error("streaming zstd reader output differs")
	}
}
