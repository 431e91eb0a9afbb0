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

package mtree

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
)

// Schema is the parsed form of a part's columns.txt: the ordered list
// of (name, type) the writer recorded.
type Schema struct {
	Names []string
	Types []block.Type
}

// ReadSchema parses columns.txt for the part at dir.
func ReadSchema(dir string) (Schema, error) {
	data, err := os.ReadFile(filepath.Join(dir, "columns.txt"))
	if err != nil {
		return Schema{}, &systemIOErr{"read", err}
	}
	var s Schema
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return Schema{}, &StorageFormatErr{Part: dir, Msg: "malformed columns.txt"}
		}
		s.Names = append(s.Names, fields[0])
		s.Types = append(s.Types, parseType(fields[1]))
	}
	return s, nil
}

func parseType(s string) block.Type {
	switch s {
	case "Int64":
		return block.TypeInt64
	case "Float64":
		return block.TypeFloat64
	case "String":
		return block.TypeString
	case "FixedString":
		return block.TypeFixedString
	case "Array":
		return block.TypeArray
	case "Tuple":
		return block.TypeTuple
	case "Bool":
		return block.TypeBool
	default:
		return block.TypeString
	}
}

// PartReader reads one sealed part directory back into a Block,
// verifying the recorded checksums.
type PartReader struct {
	dir    string
	schema Schema
	decomp Decompressor
}

// OpenPartReader opens dir, loading its schema; actual column data is
// read lazily per-field by ReadColumn so a caller doing PREWHERE/WHERE
// column splitting only ever decompresses the columns it
// needs.
func OpenPartReader(dir string) (*PartReader, error) {
	schema, err := ReadSchema(dir)
	if err != nil {
		return nil, err
	}
	return &PartReader{dir: dir, schema: schema, decomp: DefaultDecompressor()}, nil
}

// Schema returns the part's column list.
func (r *PartReader) Schema() Schema { return r.schema }

// RequiredColumns intersects the caller's wanted column set with this
// part's schema, the computation the read pool performs once per part
// per query so PREWHERE-only parts never pay for the WHERE columns.
func (r *PartReader) RequiredColumns(wanted []string) []string {
	have := make(map[string]bool, len(r.schema.Names))
	for _, n := range r.schema.Names {
		have[n] = true
	}
	var out []string
	for _, w := range wanted {
		if have[w] {
			out = append(out, w)
		}
	}
	return out
}

// readVerifiedBin reads name's entire .bin file and checks it against
// its recorded checksums.txt entry, the I/O and integrity check every
// column read needs regardless of how much of the file it goes on to
// decode.
func (r *PartReader) readVerifiedBin(name string) ([]byte, error) {
	sums, err := ReadChecksums(r.dir)
	if err != nil {
		return nil, err
	}
	var want *Checksum
	for i := range sums {
		if sums[i].File == name+".bin" {
			want = &sums[i]
			break
		}
	}
	if want == nil {
		return nil, &StorageFormatErr{Part: r.dir, Msg: fmt.Sprintf("no checksum recorded for %s.bin", name)}
	}
	raw, err := os.ReadFile(filepath.Join(r.dir, name+".bin"))
	if err != nil {
		return nil, &systemIOErr{"read", err}
	}
	if ContentHash(raw) != want.Hash {
		return nil, &StorageFormatErr{Part: r.dir, Msg: fmt.Sprintf("checksum mismatch in %s.bin", name)}
	}
	return raw, nil
}

func (r *PartReader) indexOf(name string) (int, error) {
	for i, n := range r.schema.Names {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("mtree: part %s has no column %q", r.dir, name)
}

// ReadColumn decompresses name's entire .bin stream and rebuilds the
// typed column.Column it was written from, verifying the stored
// checksum first.
func (r *PartReader) ReadColumn(name string) (column.Column, error) {
	idx, err := r.indexOf(name)
	if err != nil {
		return nil, err
	}
	raw, err := r.readVerifiedBin(name)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeBlocks(raw, r.decomp)
	if err != nil {
		return nil, &StorageFormatErr{Part: r.dir, Msg: err.Error()}
	}
	return decodeColumn(r.schema.Types[idx], decoded)
}

// ReadColumnRange decompresses only the portion of name's .bin stream
// spanning marks[firstMark:lastMark] -- or to end of file if lastMark
// is at or past len(marks) -- instead of ReadColumn's whole-column
// decode. Every mark's ByteOffset lands exactly on a compressed block
// boundary (ColumnWriter writes one block per granule), so slicing raw
// at those offsets always yields a sequence of complete
// (compressedLen, rawLen, compressed bytes) records decodeBlocks can
// read on its own. The whole file is still read and checksummed --
// checksums.txt covers the file's full content, not a sub-range -- so
// this only saves the decompression work for the marks the caller
// doesn't need, not the I/O.
func (r *PartReader) ReadColumnRange(name string, marks []Mark, firstMark, lastMark int) (column.Column, error) {
	idx, err := r.indexOf(name)
	if err != nil {
		return nil, err
	}
	raw, err := r.readVerifiedBin(name)
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if firstMark > 0 {
		if firstMark >= len(marks) {
			return nil, &StorageFormatErr{Part: r.dir, Msg: fmt.Sprintf("mark %d out of range for %s.bin (%d marks recorded)", firstMark, name, len(marks))}
		}
		start = marks[firstMark].ByteOffset
	}
	end := int64(len(raw))
	if lastMark < len(marks) {
		end = marks[lastMark].ByteOffset
	}
	if start < 0 || end > int64(len(raw)) || start > end {
		return nil, &StorageFormatErr{Part: r.dir, Msg: fmt.Sprintf("mark range [%d:%d) out of bounds for %s.bin (%d bytes)", start, end, name, len(raw))}
	}
	decoded, err := decodeBlocks(raw[start:end], r.decomp)
	if err != nil {
		return nil, &StorageFormatErr{Part: r.dir, Msg: err.Error()}
	}
	return decodeColumn(r.schema.Types[idx], decoded)
}

// ReadBlock reads every column and assembles a Block, for callers
// (merge, full scan) that need the whole part at once.
func (r *PartReader) ReadBlock() (*block.Block, error) {
	out := &block.Block{Fields: make([]block.Field, len(r.schema.Names))}
	for i, name := range r.schema.Names {
		c, err := r.ReadColumn(name)
		if err != nil {
			return nil, err
		}
		out.Fields[i] = block.Field{Name: name, Type: r.schema.Types[i], Column: c}
	}
	return out, nil
}

// ReadColumnsRange assembles a Block from names (or every column, if
// names is nil) restricted to marks[firstMark:lastMark] of each
// column's own .mrk file. A column's ByteOffset sequence is private to
// its .bin stream, but writePartFiles chunks every field at the same
// granularity, so the same (firstMark, lastMark) indexes the same row
// span in every column.
func (r *PartReader) ReadColumnsRange(names []string, firstMark, lastMark int) (*block.Block, error) {
	if names == nil {
		names = r.schema.Names
	}
	out := &block.Block{Fields: make([]block.Field, len(names))}
	for i, name := range names {
		idx, err := r.indexOf(name)
		if err != nil {
			return nil, err
		}
		marks, err := ReadMarks(r.dir, name)
		if err != nil {
			return nil, &systemIOErr{"read", err}
		}
		c, err := r.ReadColumnRange(name, marks, firstMark, lastMark)
		if err != nil {
			return nil, err
		}
		out.Fields[i] = block.Field{Name: name, Type: r.schema.Types[idx], Column: c}
	}
	return out, nil
}

// decodeBlocks undoes ColumnWriter.WriteBlock's framing: a sequence of
// (compressedLen, rawLen, compressed bytes) records.
func decodeBlocks(raw []byte, decomp Decompressor) ([]byte, error) {
	var out []byte
	for len(raw) > 0 {
		if len(raw) < 8 {
			return nil, fmt.Errorf("truncated block header")
		}
		clen := binary.LittleEndian.Uint32(raw[0:4])
		rlen := binary.LittleEndian.Uint32(raw[4:8])
		raw = raw[8:]
		if uint32(len(raw)) < clen {
			return nil, fmt.Errorf("truncated block body")
		}
		compressed := raw[:clen]
		raw = raw[clen:]
		dst := make([]byte, rlen)
		if rlen > 0 {
			if err := decomp.Decompress(compressed, dst); err != nil {
				return nil, fmt.Errorf("decompress: %w", err)
			}
		}
		out = append(out, dst...)
	}
	return out, nil
}

// decodeColumn rebuilds a concrete column.Column from the
// length-prefixed GetDataAt-format row stream encodeColumn produced.
// Array and Tuple columns are nested and are not round-tripped through
// this on-disk format; callers needing them must keep their source
// blocks resident instead of relying on a part reload.
func decodeColumn(t block.Type, data []byte) (column.Column, error) {
	switch t {
	case block.TypeInt64:
		c := column.NewNumeric[int64](0)
		return c, decodeFixedWidth(data, 8, func(b []byte) {
			c.Values = append(c.Values, int64(binary.LittleEndian.Uint64(b)))
		})
	case block.TypeFloat64:
		c := column.NewNumeric[float64](0)
		return c, decodeFixedWidth(data, 8, func(b []byte) {
			bits := binary.LittleEndian.Uint64(b)
			c.Values = append(c.Values, math.Float64frombits(bits))
		})
	case block.TypeBool:
		c := column.NewNumeric[int8](0)
		return c, decodeFixedWidth(data, 1, func(b []byte) {
			c.Values = append(c.Values, int8(b[0]))
		})
	case block.TypeString:
		c := &column.String{}
		err := decodeVarWidth(data, func(b []byte) {
			c.Chars = append(c.Chars, b...)
			c.Offsets = append(c.Offsets, len(c.Chars))
		})
		return c, err
	case block.TypeFixedString:
		var width int
		first := true
		c := &column.FixedString{}
		err := decodeVarWidth(data, func(b []byte) {
			if first {
				width = len(b)
				c.Width = width
				first = false
			}
			c.Chars = append(c.Chars, b...)
		})
		return c, err
	default:
		return nil, fmt.Errorf("on-disk decode not supported for %s columns", t)
	}
}

func decodeFixedWidth(data []byte, width int, append func([]byte)) error {
	off := 0
	for off < len(data) {
		if off+4 > len(data) {
			return fmt.Errorf("truncated row length")
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+n > len(data) {
			return fmt.Errorf("truncated row body")
		}
		if n != width {
			return fmt.Errorf("row width %d, want %d", n, width)
		}
		append(data[off : off+n])
		off += n
	}
	return nil
}

func decodeVarWidth(data []byte, append func([]byte)) error {
	off := 0
	for off < len(data) {
		if off+4 > len(data) {
			return fmt.Errorf("truncated row length")
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if off+n > len(data) {
			return fmt.Errorf("truncated row body")
		}
		append(data[off : off+n])
		off += n
	}
	return nil
}
