// ABOUTME: Single-pass, line-oriented parser for the fixed-layout graph file format.
// ABOUTME: Reads the node count, demand lines, edge count, and edge lines, failing on the first malformed line.
package graphfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultPath is the graph file read when no path is configured.
const DefaultPath = "grafo.txt"

// MaxLineBytes is the longest line the parser accepts, terminator included.
const MaxLineBytes = 1 << 20

// MaxValue bounds demands and arc costs so route and partition sums cannot
// overflow.
const MaxValue = 1_000_000_000

// errEOF signals that the input ended before a required line.
var errEOF = errors.New("unexpected end of input")

// ParseFile opens path and parses it. Open and read failures are reported as
// *FileAccessError, content problems as *FormatError.
func ParseFile(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	defer f.Close()

	inst, err := Parse(f)
	if err != nil {
		if errors.Is(err, ErrFormat) {
			return nil, err
		}
		return nil, &FileAccessError{Path: path, Err: err}
	}
	return inst, nil
}

// Parse reads an instance from r:
//
//	N_plus_1
//	<node_id> <demand>          (N_plus_1 - 1 lines)
//	K
//	<origin> <destination> <cost>   (K lines)
//
// Node id 0 is the depot and may not carry a demand. All values are
// non-negative integers no larger than MaxValue. Lines longer than MaxLineBytes
// are format errors.
func Parse(r io.Reader) (*Instance, error) {
	lr := newLineReader(r)

	header, err := lr.ints(SectionNodeCount, 1)
	if err != nil {
		if errors.Is(err, errEOF) {
			return nil, lr.errorf(SectionNodeCount, "empty input: expected the node count")
		}
		return nil, err
	}
	nodeCount := header[0]
	if nodeCount < 1 {
		return nil, lr.errorf(SectionNodeCount, "node count must be at least 1 (the depot), got %d", nodeCount)
	}

	inst := &Instance{
		NodeCount: nodeCount,
		Entries:   make([]Demand, 0, nodeCount-1),
	}

	for i := 0; i < nodeCount-1; i++ {
		f, err := lr.ints(SectionDemand, 2)
		if err != nil {
			if errors.Is(err, errEOF) {
				return nil, lr.errorf(SectionDemand, "unexpected end of input: declared %d demand lines, found %d", nodeCount-1, i)
			}
			return nil, err
		}
		switch {
		case f[0] < 0:
			return nil, lr.errorf(SectionDemand, "node id must not be negative, got %d", f[0])
		case f[0] == 0:
			return nil, lr.errorf(SectionDemand, "node 0 is the depot and cannot carry a demand")
		case f[1] < 0:
			return nil, lr.errorf(SectionDemand, "demand must not be negative, got %d", f[1])
		case f[1] > MaxValue:
			return nil, lr.errorf(SectionDemand, "demand %d exceeds the limit of %d", f[1], MaxValue)
		}
		inst.Entries = append(inst.Entries, Demand{Node: f[0], Amount: f[1], Line: lr.line})
	}

	countLine, err := lr.ints(SectionEdgeCount, 1)
	if err != nil {
		if errors.Is(err, errEOF) {
			return nil, lr.errorf(SectionEdgeCount, "unexpected end of input: expected the edge count")
		}
		return nil, err
	}
	edgeCount := countLine[0]
	if edgeCount < 0 {
		return nil, lr.errorf(SectionEdgeCount, "edge count must not be negative, got %d", edgeCount)
	}

	inst.Edges = make([]Edge, 0, edgeCount)
	for i := 0; i < edgeCount; i++ {
		f, err := lr.ints(SectionEdge, 3)
		if err != nil {
			if errors.Is(err, errEOF) {
				return nil, lr.errorf(SectionEdge, "unexpected end of input: declared %d edges, found %d", edgeCount, i)
			}
			return nil, err
		}
		switch {
		case f[0] < 0 || f[1] < 0:
			return nil, lr.errorf(SectionEdge, "node ids must not be negative, got %d -> %d", f[0], f[1])
		case f[2] < 0:
			return nil, lr.errorf(SectionEdge, "cost must not be negative, got %d", f[2])
		case f[2] > MaxValue:
			return nil, lr.errorf(SectionEdge, "cost %d exceeds the limit of %d", f[2], MaxValue)
		}
		inst.Edges = append(inst.Edges, Edge{
			From: RefOf(f[0]),
			To:   RefOf(f[1]),
			Cost: f[2],
			Line: lr.line,
		})
	}

	trailing, err := lr.drain()
	if err != nil {
		return nil, err
	}
	inst.Trailing = trailing

	return inst, nil
}

// lineReader consumes the input one line at a time and tracks the line number.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxLineBytes)
	return &lineReader{sc: sc}
}

// ints reads the next line and converts exactly want whitespace-separated fields.
func (lr *lineReader) ints(section string, want int) ([]int, error) {
	if !lr.sc.Scan() {
		if err := lr.sc.Err(); err != nil {
			return nil, lr.readErr(section, err)
		}
		lr.line++
		return nil, errEOF
	}
	lr.line++

	fields := strings.Fields(lr.sc.Text())
	if len(fields) != want {
		return nil, lr.errorf(section, "expected %d %s, got %d", want, plural(want, "field"), len(fields))
	}

	out := make([]int, want)
	for i, tok := range fields {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, lr.errorf(section, "field %d: %q is not an integer", i+1, tok)
		}
		out[i] = v
	}
	return out, nil
}

// drain consumes the rest of the input and counts non-blank lines.
func (lr *lineReader) drain() (int, error) {
	n := 0
	for lr.sc.Scan() {
		lr.line++
		if strings.TrimSpace(lr.sc.Text()) != "" {
			n++
		}
	}
	if err := lr.sc.Err(); err != nil {
		return 0, lr.readErr(SectionTrailing, err)
	}
	return n, nil
}

// readErr classifies a scanner failure on the line after lr.line. An
// over-long line is content, not I/O.
func (lr *lineReader) readErr(section string, err error) error {
	if errors.Is(err, bufio.ErrTooLong) {
		return &FormatError{Line: lr.line + 1, Section: section, Msg: fmt.Sprintf("line longer than %d bytes", MaxLineBytes)}
	}
	return fmt.Errorf("read line %d: %w", lr.line+1, err)
}

func (lr *lineReader) errorf(section, format string, args ...any) *FormatError {
	return &FormatError{Line: lr.line, Section: section, Msg: fmt.Sprintf(format, args...)}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
