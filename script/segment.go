package script

import (
	"regexp"
	"strings"
)

// SegmentKind distinguishes block segments from delimiter segments.
type SegmentKind int

// Segment kinds.
const (
	SegmentBlock SegmentKind = iota
	SegmentDelimiter
)

// Segment is a run of consecutive document lines: either a single delimiter
// line or the block of lines between delimiters.
type Segment struct {
	Kind SegmentKind
	// Lines holds the raw lines of the segment, without line terminators.
	Lines []string
	// Start is the zero-based document line of the first line in Lines.
	Start int
}

var delimiterRe = regexp.MustCompile(`^\s*#{3,}\s*$`)

// Segments splits a document into an ordered sequence of block and delimiter
// segments. An empty document yields exactly one block containing a single
// empty line, so downstream code always has a block to examine. The function
// is pure: segmenting the same text twice yields identical results.
func Segments(text string) []Segment {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var segments []Segment
	var block []string
	blockStart := 0

	flush := func() {
		if len(block) > 0 {
			segments = append(segments, Segment{Kind: SegmentBlock, Lines: block, Start: blockStart})
			block = nil
		}
	}

	for i, line := range lines {
		if delimiterRe.MatchString(line) {
			flush()
			segments = append(segments, Segment{Kind: SegmentDelimiter, Lines: []string{line}, Start: i})
			blockStart = i + 1
			continue
		}
		if len(block) == 0 {
			blockStart = i
		}
		block = append(block, line)
	}
	flush()

	return segments
}
