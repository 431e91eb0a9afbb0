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
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/coretool/columnar/compr"
)

// Mark is one sparse-index entry: a (row-offset-in-column,
// byte-offset-in-compressed-stream) pair placed every index_granularity
// rows.
type Mark struct {
	RowOffset  int64
	ByteOffset int64
}

// ColumnFile is the on-disk pair of files written per column: the
// compressed .bin data stream and its .mrk marks file.
type ColumnFile struct {
	Name  string
	Marks []Mark
}

// Checksum is one checksums.txt record: file size, uncompressed size
// (if compressed) and a 128-bit content hash.
type Checksum struct {
	File             string
	Size             int64
	UncompressedSize int64
	Hash             [16]byte
}

const checksumsVersion = "checksums format version: 1"

// WriteChecksums writes checksums.txt in file-name-sorted order, as
// required so the summary is hashed in file-name-sorted order.
func WriteChecksums(dir string, sums []Checksum) error {
	sorted := append([]Checksum{}, sums...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })
	var sb strings.Builder
	sb.WriteString(checksumsVersion)
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "%d\n", len(sorted))
	for _, s := range sorted {
		fmt.Fprintf(&sb, "%s\t%d\t%d\t%x\n", s.File, s.Size, s.UncompressedSize, s.Hash)
	}
	return writeFileFsync(filepath.Join(dir, "checksums.txt"), []byte(sb.String()))
}

// ReadChecksums parses checksums.txt, rejecting a too-old variant
// with ErrFormatVersionTooOld.
func ReadChecksums(dir string) ([]Checksum, error) {
	data, err := os.ReadFile(filepath.Join(dir, "checksums.txt"))
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || lines[0] != checksumsVersion {
		return nil, ErrFormatVersionTooOld
	}
	n, err := strconv.Atoi(lines[1])
	if err != nil {
		return nil, fmt.Errorf("mtree: checksums.txt: bad count: %w", err)
	}
	if n < 0 || 2+n > len(lines) {
		return nil, &StorageFormatErr{Part: dir, Msg: fmt.Sprintf("checksums.txt declares %d records but has only %d lines", n, len(lines)-2)}
	}
	out := make([]Checksum, 0, n)
	for _, line := range lines[2 : 2+n] {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("mtree: checksums.txt: malformed record %q", line)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, err
		}
		usize, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, err
		}
		var hash [16]byte
		rawHash, err := hex.DecodeString(fields[3])
		if err != nil {
			return nil, err
		}
		if len(rawHash) != len(hash) {
			return nil, fmt.Errorf("mtree: checksums.txt: bad hash length in record %q", line)
		}
		copy(hash[:], rawHash)
		out = append(out, Checksum{File: fields[0], Size: size, UncompressedSize: usize, Hash: hash})
	}
	return out, nil
}

// ErrFormatVersionTooOld is the StorageFormat error for a
// checksums.txt written by an earlier, no-longer-supported format.
var ErrFormatVersionTooOld = fmt.Errorf("mtree: checksums.txt format version too old")

// ContentHash computes the 128-bit blake2b content hash recorded per
// file in checksums.txt.
func ContentHash(data []byte) [16]byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err) // only errors on an invalid key, which we never pass
	}
	h.Write(data)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Compressor is the codec used for every .bin file; adapts the
// teacher's compr.Compressor/Decompressor interfaces (backed by
// klauspost/compress zstd) to the merge-tree's block-at-a-time
// writer.
type Compressor = compr.Compressor
type Decompressor = compr.Decompressor

// DefaultCompressor returns the zstd codec compr exposes, matching
// the default block compression algorithm.
func DefaultCompressor() Compressor { return compr.Compression("zstd") }

// DefaultDecompressor returns the matching zstd decoder.
func DefaultDecompressor() Decompressor { return compr.Decompression("zstd") }

// ColumnWriter writes one column's compressed .bin stream plus its
// .mrk marks file, emitting a mark every granularity rows.
type ColumnWriter struct {
	name        string
	granularity int
	comp        Compressor

	binPath, mrkPath string
	bin              *os.File
	mrkBuf           []byte
	compressedOffset int64
	rowsSinceMark    int64
	rowOffset        int64
	marks            []Mark
}

// CreateColumnWriter opens <dir>/<name>.bin for writing; Close writes
// the matching <name>.mrk.
func CreateColumnWriter(dir, name string, granularity int, comp Compressor) (*ColumnWriter, error) {
	bin, err := os.Create(filepath.Join(dir, name+".bin"))
	if err != nil {
		return nil, &systemIOErr{"create", err}
	}
	return &ColumnWriter{name: name, granularity: granularity, comp: comp, bin: bin}, nil
}

// WriteBlock compresses and appends one already-serialized block of
// rows; it must be called with monotonically increasing row batches
// (the writer does not reorder).
func (w *ColumnWriter) WriteBlock(rows int64, raw []byte) error {
	compressed := w.comp.Compress(raw, nil)
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(raw)))
	if _, err := w.bin.Write(hdr[:]); err != nil {
		return &systemIOErr{"write", err}
	}
	if _, err := w.bin.Write(compressed); err != nil {
		return &systemIOErr{"write", err}
	}
	for w.rowsSinceMark+rows >= int64(w.granularity) && w.granularity > 0 {
		w.marks = append(w.marks, Mark{RowOffset: w.rowOffset, ByteOffset: w.compressedOffset})
		consumed := int64(w.granularity) - w.rowsSinceMark
		rows -= consumed
		w.rowOffset += consumed
		w.rowsSinceMark = 0
	}
	w.rowsSinceMark += rows
	w.rowOffset += rows
	w.compressedOffset += int64(len(hdr)) + int64(len(compressed))
	return nil
}

// Close finalizes the marks file and fsyncs both files.
func (w *ColumnWriter) Close() (Checksum, error) {
	defer w.bin.Close()
	if err := fsyncFile(w.bin); err != nil {
		return Checksum{}, err
	}
	var buf []byte
	for _, m := range w.marks {
		var rec [16]byte
		binary.LittleEndian.PutUint64(rec[0:8], uint64(m.RowOffset))
		binary.LittleEndian.PutUint64(rec[8:16], uint64(m.ByteOffset))
		buf = append(buf, rec[:]...)
	}
	mrkPath := filepath.Join(filepath.Dir(w.bin.Name()), w.name+".mrk")
	if err := writeFileFsync(mrkPath, buf); err != nil {
		return Checksum{}, err
	}
	info, err := os.Stat(w.bin.Name())
	if err != nil {
		return Checksum{}, &systemIOErr{"stat", err}
	}
	data, err := os.ReadFile(w.bin.Name())
	if err != nil {
		return Checksum{}, &systemIOErr{"read", err}
	}
	return Checksum{File: filepath.Base(w.bin.Name()), Size: info.Size(), Hash: ContentHash(data)}, nil
}

// ReadMarks loads a .mrk file fully into memory.
func ReadMarks(dir, name string) ([]Mark, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".mrk"))
	if err != nil {
		return nil, err
	}
	if len(data)%16 != 0 {
		return nil, &StorageFormatErr{Part: dir, Msg: fmt.Sprintf("bad size of %s.mrk", name)}
	}
	out := make([]Mark, len(data)/16)
	for i := range out {
		out[i].RowOffset = int64(binary.LittleEndian.Uint64(data[i*16:]))
		out[i].ByteOffset = int64(binary.LittleEndian.Uint64(data[i*16+8:]))
	}
	return out, nil
}

// StorageFormatErr is the StorageFormat error class.
type StorageFormatErr struct {
	Part, Msg string
}

func (e *StorageFormatErr) Error() string { return fmt.Sprintf("mtree: part %s: %s", e.Part, e.Msg) }

type systemIOErr struct {
	op  string
	err error
}

func (e *systemIOErr) Error() string { return fmt.Sprintf("mtree: io: %s: %v", e.op, e.err) }
func (e *systemIOErr) Unwrap() error { return e.err }

func writeFileFsync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return &systemIOErr{"create", err}
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return &systemIOErr{"write", err}
	}
	if err := w.Flush(); err != nil {
		return &systemIOErr{"flush", err}
	}
	return fsyncFile(f)
}

// fsyncFile flushes f to stable storage, the durability step required
// before a part's directory is renamed into place. It is implemented
// per-OS: fsync_linux.go uses fdatasync (data only), fsync_other.go
// uses File.Sync.

// fsyncDir fsyncs a directory's metadata, needed on POSIX filesystems
// after a rename so the new directory entry itself survives a crash.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return &systemIOErr{"open", err}
	}
	defer d.Close()
	return fsyncFile(d)
}
