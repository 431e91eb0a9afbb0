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

package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/coretool/columnar/block"
	"github.com/coretool/columnar/column"
	"github.com/coretool/columnar/stream"
)

// Log is an append-only single-file table: every Insert's block is
// serialized column-by-column (the same length-prefixed GetDataAt
// encoding the merge-tree writer uses) and appended to one growing
// file, with no part lifecycle, no compression and no sparse index --
// the minimal durable sink alongside Memory.
type Log struct {
	mu     sync.Mutex
	f      *os.File
	schema []schemaEntry
}

type schemaEntry struct {
	name string
	typ  block.Type
}

// OpenLog opens (creating if necessary) the single backing file at
// path for append.
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open log: %w", err)
	}
	return &Log{f: f}, nil
}

// Write implements stream.Sink.
func (l *Log) Write(b *block.Block) error {
	if b.Empty() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.schema == nil {
		for _, f := range b.Fields {
			l.schema = append(l.schema, schemaEntry{f.Name, f.Type})
		}
	}
	var frame []byte
	var hdr [4]byte
	rows := b.Rows()
	binary.LittleEndian.PutUint32(hdr[:], uint32(rows))
	frame = append(frame, hdr[:]...)
	for _, f := range b.Fields {
		for i := 0; i < rows; i++ {
			data := f.Column.GetDataAt(i)
			binary.LittleEndian.PutUint32(hdr[:], uint32(len(data)))
			frame = append(frame, hdr[:]...)
			frame = append(frame, data...)
		}
	}
	_, err := l.f.Write(frame)
	if err != nil {
		return fmt.Errorf("storage: log write: %w", err)
	}
	return l.f.Sync()
}

// Insert is Write under the merge-tree writer's naming.
func (l *Log) Insert(b *block.Block) error { return l.Write(b) }

// Close flushes and closes the backing file.
func (l *Log) Close() error { return l.f.Close() }

// Scan replays every block previously written, reconstructing each
// column via its recorded schema entry. Log does not track column
// types beyond what the first Write saw, so every subsequent block
// must share that schema (the same assumption package block's
// Validate enforces elsewhere).
func (l *Log) Scan() (stream.Source, error) {
	l.mu.Lock()
	schema := append([]schemaEntry{}, l.schema...)
	path := l.f.Name()
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: log scan: %w", err)
	}
	p := &stream.Profiled{}
	p.Impl = func() (*block.Block, error) {
		b, err := readLogFrame(f, schema)
		if err != nil {
			f.Close()
			return nil, err
		}
		if b == nil {
			f.Close()
			return &block.Block{}, nil
		}
		return b, nil
	}
	return p, nil
}

func readLogFrame(f *os.File, schema []schemaEntry) (*block.Block, error) {
	var hdr [4]byte
	if _, err := f.Read(hdr[:]); err != nil {
		return nil, nil // EOF (or short read at EOF): end of stream
	}
	rows := int(binary.LittleEndian.Uint32(hdr[:]))
	out := &block.Block{Fields: make([]block.Field, len(schema))}
	for fi, se := range schema {
		col := newColumnForLog(se.typ)
		for i := 0; i < rows; i++ {
			if _, err := f.Read(hdr[:]); err != nil {
				return nil, fmt.Errorf("storage: log: truncated row length: %w", err)
			}
			n := int(binary.LittleEndian.Uint32(hdr[:]))
			buf := make([]byte, n)
			if n > 0 {
				if _, err := f.Read(buf); err != nil {
					return nil, fmt.Errorf("storage: log: truncated row body: %w", err)
				}
			}
			appendRawRow(col, buf)
		}
		out.Fields[fi] = block.Field{Name: se.name, Type: se.typ, Column: col}
	}
	return out, nil
}

func newColumnForLog(t block.Type) column.Column {
	switch t {
	case block.TypeInt64:
		return column.NewNumeric[int64](0)
	case block.TypeFloat64:
		return column.NewNumeric[float64](0)
	case block.TypeBool:
		return column.NewNumeric[int8](0)
	case block.TypeFixedString:
		return column.NewFixedString(0)
	default:
		return column.NewString()
	}
}

// appendRawRow inserts buf as one row into col by growing a matching
// single-row column and delegating to InsertFrom, avoiding a
// column-kind type switch here at the cost of one extra allocation per
// row; Log favors simplicity over throughput (the merge-tree's own
// ColumnWriter is the high-volume path).
func appendRawRow(col column.Column, buf []byte) {
	tmp := sameKindSingleRow(col, buf)
	_ = col.InsertFrom(tmp, 0)
}

func sameKindSingleRow(col column.Column, buf []byte) column.Column {
	switch col.(type) {
	case *column.Numeric[int64]:
		v := int64(binary.LittleEndian.Uint64(buf))
		return &column.Numeric[int64]{Values: []int64{v}}
	case *column.Numeric[float64]:
		bits := binary.LittleEndian.Uint64(buf)
		return &column.Numeric[float64]{Values: []float64{math.Float64frombits(bits)}}
	case *column.Numeric[int8]:
		return &column.Numeric[int8]{Values: []int8{int8(buf[0])}}
	case *column.FixedString:
		return &column.FixedString{Width: len(buf), Chars: append([]byte{}, buf...)}
	default:
		s := column.NewString()
		_ = s.InsertFrom(singleRowString(buf), 0)
		return s
	}
}

func singleRowString(buf []byte) *column.String {
	s := column.NewString()
	s.Chars = append(s.Chars, buf...)
	s.Offsets = append(s.Offsets, len(s.Chars))
	return s
}

var _ stream.Sink = (*Log)(nil)
