// Package chunker splits raw source text into overlapping, sentence-aware
// segments sized by an estimated token count.
package chunker

import (
	"strings"
	"unicode"
)

// CharsPerToken is the fixed characters-per-token ratio used for sizing and
// estimation. This is an approximation, not exact billing truth; the actual
// model tokenizer is not consulted.
const CharsPerToken = 4

// boundaryBackscan is how far (in characters) to search backwards from a
// window edge for a sentence terminator before giving up and cutting at the
// edge.
const boundaryBackscan = 200

// Config configures the chunker
type Config struct {
	// TargetTokens is the desired chunk size in estimated tokens
	TargetTokens int

	// OverlapTokens is the estimated-token overlap between adjacent chunks
	OverlapTokens int
}

// DefaultConfig returns the standard chunking parameters
func DefaultConfig() Config {
	return Config{
		TargetTokens:  500,
		OverlapTokens: 100,
	}
}

// Segment is one chunk of the input with its offsets into the original text
type Segment struct {
	Text          string
	StartChar     int
	EndChar       int
	Position      int
	TokenEstimate int
}

// Chunker splits text into overlapping segments, preferring sentence
// boundaries over mid-sentence cuts near window edges.
type Chunker struct {
	config Config
}

// New creates a chunker, applying defaults for non-positive values
func New(config Config) *Chunker {
	if config.TargetTokens <= 0 {
		config.TargetTokens = DefaultConfig().TargetTokens
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = 0
	}
	return &Chunker{config: config}
}

// EstimateTokens approximates the token count of text using the fixed
// characters-per-token ratio. Always at least 1 for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + CharsPerToken - 1) / CharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// Split chunks the text. Empty or whitespace-only input yields no segments;
// a shorter-than-normal chunk is still emitted at the end of input.
func (c *Chunker) Split(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	windowSize := c.config.TargetTokens * CharsPerToken
	overlap := c.config.OverlapTokens * CharsPerToken

	var segments []Segment
	start := 0
	position := 0

	for start < len(text) {
		end := start + windowSize
		if end > len(text) {
			end = len(text)
		} else {
			// The boundary falls inside the body: prefer cutting at the
			// last sentence terminator within the backscan range.
			if cut := findSentenceCut(text, start, end); cut > start {
				end = cut
			}
		}

		segText := text[start:end]
		if strings.TrimSpace(segText) != "" {
			segments = append(segments, Segment{
				Text:          segText,
				StartChar:     start,
				EndChar:       end,
				Position:      position,
				TokenEstimate: EstimateTokens(segText),
			})
			position++
		}

		if end >= len(text) {
			break
		}

		// Next window starts overlap characters back from the cut, clamped
		// so progress is always made.
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return segments
}

// findSentenceCut searches backwards from maxEnd (up to boundaryBackscan
// characters, never before start) for the last '.', '!', or '?' followed by
// whitespace, and returns the offset just past the terminator. Returns
// maxEnd when no terminator is found. maxEnd must not exceed len(text).
func findSentenceCut(text string, start, maxEnd int) int {
	searchStart := maxEnd - boundaryBackscan
	if searchStart < start {
		searchStart = start
	}

	for i := maxEnd - 1; i > searchStart; i-- {
		ch := text[i-1]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if isSpace(text[i]) {
			return i
		}
	}
	return maxEnd
}

func isSpace(b byte) bool {
	return unicode.IsSpace(rune(b))
}
