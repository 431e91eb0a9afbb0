// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package compr

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, name string, payload []byte) {
	t.Helper()
	comp := Compression(name)
	if comp == nil {
		t.Fatalf("Compression(%q) returned nil", name)
	}
	if comp.Name() != name {
		t.Fatalf("Compressor.Name() = %q, want %q", comp.Name(), name)
	}
	dec := Decompression(name)
	if dec == nil {
		t.Fatalf("Decompression(%q) returned nil", name)
	}

	packed := comp.Compress(payload, nil)
	out := make([]byte, len(payload))
	if err := dec.Decompress(packed, out); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("round trip mismatch for %s", name)
	}
}

// every name Compression accepts must come back unchanged from
// Compressor.Name, and data it compresses must decode through
// Decompression under the same name.
func TestRoundTripEveryNamedCodec(t *testing.T) {
	payload := bytes.Repeat([]byte("columnar-block-payload "), 500)
	for _, name := range []string{"zstd", "zstd-better", "s2"} {
		roundTrip(t, name, payload)
	}
}

func TestDecompressionZstdNoCRCUsesSeparateDecoder(t *testing.T) {
	payload := []byte("checksum already verified by ReadChecksums upstream")
	comp := Compression("zstd")
	packed := comp.Compress(payload, nil)

	dec := Decompression("zstd-nocrc")
	if dec.Name() != "zstd" {
		t.Fatalf("zstd-nocrc decompressor reports Name() = %q, want zstd", dec.Name())
	}
	out := make([]byte, len(payload))
	if err := dec.Decompress(packed, out); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestCompressionUnknownNameReturnsNil(t *testing.T) {
	if Compression("lz4") != nil {
		t.Fatal("Compression(unknown) should return nil")
	}
	if Decompression("lz4") != nil {
		t.Fatal("Decompression(unknown) should return nil")
	}
}

func TestS2CompressOverlappingBuffers(t *testing.T) {
	comp := Compression("s2")
	dec := Decompression("s2")

	ctl := bytes.Repeat([]byte("foo"), 1000)
	src := append([]byte(nil), ctl...)
	dst := make([]byte, len(src))

	// mirrors ColumnWriter's append-into-the-tail-of-the-output-buffer
	// usage, where the compressed bytes may land adjacent to (but not
	// overlapping) the source slice's backing array.
	packed := comp.Compress(src[10:], src[:8])
	if err := dec.Decompress(packed[8:], dst[10:]); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(ctl[10:], dst[10:]) {
		t.Fatal("round trip mismatch with overlapping buffers")
	}
}

func TestOverlaps(t *testing.T) {
	a := make([]byte, 10)
	b := make([]byte, 20)
	if overlaps(a, b) {
		t.Error("disjoint allocations should not overlap")
	}

	a = make([]byte, 10, 30)
	b = a[10:]
	if overlaps(a, b) || overlaps(b, a) {
		t.Error("adjacent, non-overlapping slices should not overlap")
	}

	b = a[5:]
	if !overlaps(a, b) || !overlaps(b, a) {
		t.Error("slices sharing bytes [5:10) should overlap")
	}

	b = a[9:]
	if !overlaps(a, b) || !overlaps(b, a) {
		t.Error("slices sharing one byte should overlap")
	}
}
