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

// Package valueops implements the misc value-level operators used
// at the interface level: arithmetic, comparison, set
// membership, tuple access, the arrayJoin row-multiplying marker, the
// bar() sparkline helper, and a couple of environment accessors. These
// operate on single column.Column values the vectorized pipeline has
// already materialized, not on raw rows -- the pipeline is expected to
// call a Func once per block, not once per value.
package valueops

import (
	"fmt"
	"os"

	"github.com/coretool/columnar/column"
)

// Func is the shape every operator in this package implements: given
// one or more input columns (all the same Size()), produce one output
// column of matching Size().
type Func interface {
	Name() string
	Eval(args []column.Column) (column.Column, error)
}

// ErrArity is returned when an operator is called with the wrong
// number of arguments.
type ErrArity struct {
	Op       string
	Got, Want int
}

func (e *ErrArity) Error() string {
	return fmt.Sprintf("valueops: %s: got %d arguments, want %d", e.Op, e.Got, e.Want)
}

// Arith is +, -, *, / over two Numeric[T] columns of identical T.
type Arith struct {
	Op byte // '+', '-', '*', '/'
}

func (a Arith) Name() string { return string(a.Op) }

func (a Arith) Eval(args []column.Column) (column.Column, error) {
	if len(args) != 2 {
		return nil, &ErrArity{Op: a.Name(), Got: len(args), Want: 2}
	}
	switch l := args[0].(type) {
	case *column.Numeric[int64]:
		r, ok := args[1].(*column.Numeric[int64])
		if !ok {
			return nil, fmt.Errorf("valueops: %s: mismatched operand types", a.Name())
		}
		return arithInt64(a.Op, l, r)
	case *column.Numeric[float64]:
		r, ok := args[1].(*column.Numeric[float64])
		if !ok {
			return nil, fmt.Errorf("valueops: %s: mismatched operand types", a.Name())
		}
		return arithFloat64(a.Op, l, r)
	default:
		return nil, fmt.Errorf("valueops: %s: unsupported operand type", a.Name())
	}
}

func arithInt64(op byte, l, r *column.Numeric[int64]) (column.Column, error) {
	if l.Size() != r.Size() {
		return nil, &column.ErrSizeMismatch{Op: "Arith", Got: r.Size(), Want: l.Size()}
	}
	out := column.NewNumeric[int64](l.Size())
	for i, lv := range l.Values {
		rv := r.Values[i]
		var v int64
		switch op {
		case '+':
			v = lv + rv
		case '-':
			v = lv - rv
		case '*':
			v = lv * rv
		case '/':
			if rv == 0 {
				return nil, fmt.Errorf("valueops: division by zero")
			}
			v = lv / rv
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

func arithFloat64(op byte, l, r *column.Numeric[float64]) (column.Column, error) {
	if l.Size() != r.Size() {
		return nil, &column.ErrSizeMismatch{Op: "Arith", Got: r.Size(), Want: l.Size()}
	}
	out := column.NewNumeric[float64](l.Size())
	for i, lv := range l.Values {
		rv := r.Values[i]
		var v float64
		switch op {
		case '+':
			v = lv + rv
		case '-':
			v = lv - rv
		case '*':
			v = lv * rv
		case '/':
			v = lv / rv
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// Compare is <, <=, =, !=, >=, > over two columns of the same
// concrete type, producing a Numeric[int8] mask (0/1) the pipeline's
// block.Filter consumes directly.
type Compare struct {
	Op string // "<", "<=", "=", "!=", ">=", ">"
}

func (c Compare) Name() string { return c.Op }

func (c Compare) Eval(args []column.Column) (column.Column, error) {
	if len(args) != 2 {
		return nil, &ErrArity{Op: c.Name(), Got: len(args), Want: 2}
	}
	l, r := args[0], args[1]
	if l.Size() != r.Size() {
		return nil, &column.ErrSizeMismatch{Op: "Compare", Got: r.Size(), Want: l.Size()}
	}
	out := column.NewNumeric[int8](l.Size())
	for i := 0; i < l.Size(); i++ {
		cmp := l.CompareAt(i, r, i, column.NaNLast)
		var hit bool
		switch c.Op {
		case "<":
			hit = cmp < 0
		case "<=":
			hit = cmp <= 0
		case "=":
			hit = cmp == 0
		case "!=":
			hit = cmp != 0
		case ">=":
			hit = cmp >= 0
		case ">":
			hit = cmp > 0
		}
		var v int8
		if hit {
			v = 1
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// In tests membership of a probe column's every row against a fixed
// set column (IN / NOT IN), producing a Numeric[int8] mask.
type In struct {
	Negate bool
}

func (f In) Name() string {
	if f.Negate {
		return "NOT IN"
	}
	return "IN"
}

// Eval takes args[0] as the probe column and args[1] as the set
// column (every row of args[1] is a candidate member).
func (f In) Eval(args []column.Column) (column.Column, error) {
	if len(args) != 2 {
		return nil, &ErrArity{Op: f.Name(), Got: len(args), Want: 2}
	}
	probe, set := args[0], args[1]
	out := column.NewNumeric[int8](probe.Size())
	for i := 0; i < probe.Size(); i++ {
		found := false
		for j := 0; j < set.Size(); j++ {
			if probe.CompareAt(i, set, j, column.NaNLast) == 0 {
				found = true
				break
			}
		}
		if f.Negate {
			found = !found
		}
		var v int8
		if found {
			v = 1
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

// TupleElement extracts one named field from every row of a
// column.Tuple, returning that field's column unchanged (tuples are
// block-of-columns, so this is a zero-copy projection).
func TupleElement(t *column.Tuple, name string) (column.Column, error) {
	c, ok := t.Field(name)
	if !ok {
		return nil, fmt.Errorf("valueops: tupleElement: no field %q", name)
	}
	return c, nil
}

// ArrayJoinMarker tags a query plan node as one that explodes an Array
// column into one row per element. It carries
// no logic itself -- the actual row multiplication is Array.Replicate
// composed with the inverse of Array's own Offsets, which belongs to
// whatever plan-execution layer drives the pipeline, not to this
// package.
type ArrayJoinMarker struct {
	Column string
}

// Bar renders value as an ASCII sparkline of width characters scaled
// linearly between min and max, mirroring the bar() introspection
// helper common in analytical SQL dialects.
func Bar(value, min, max float64, width int) string {
	if width <= 0 {
		return ""
	}
	if max <= min {
		return ""
	}
	frac := (value - min) / (max - min)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	n := int(frac * float64(width))
	bar := make([]byte, width)
	for i := range bar {
		if i < n {
			bar[i] = '#'
		} else {
			bar[i] = ' '
		}
	}
	return string(bar)
}

// HostName and CurrentDatabase are two environment accessors that
// are constant per process, not per row, so they are plain functions
// rather than Funcs.
func HostName() (string, error) {
	return os.Hostname()
}

func CurrentDatabase(name string) string { return name }

// VisibleWidth approximates the on-screen display width of s, treating
// every rune as one column (no East-Asian-wide or combining-mark
// handling); good enough for aligning CLI output, which is the only
// consumer names for it.
func VisibleWidth(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
