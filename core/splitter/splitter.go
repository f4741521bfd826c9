package splitter

import (
	"strings"

	"github.com/siherrmann/docrag/model"
)

// Splitter segments extracted text into overlapping chunks. Splitting is
// deterministic: the same text and configuration always produce the same
// chunks, which keeps re-ingestion fingerprint-stable.
type Splitter struct {
	config model.SplitConfig
}

// NewSplitter creates a splitter for the given configuration.
func NewSplitter(config model.SplitConfig) (*Splitter, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}
	return &Splitter{config: config}, nil
}

// Config returns the configuration the splitter was created with.
func (s *Splitter) Config() model.SplitConfig {
	return s.config
}

// Split segments text into chunks of at most ChunkSize characters, each
// sharing Overlap characters with its predecessor. Chunk contents are exact
// slices of the input, so the original text can be reassembled by dropping
// each chunk's overlap prefix. Boundaries prefer paragraph breaks, then
// sentence ends, then hard cuts.
func (s *Splitter) Split(fingerprint string, text string) ([]model.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyText
	}

	runes := []rune(text)
	var chunks []model.Chunk

	start := 0
	index := 0
	overlap := 0

	for start < len(runes) {
		end := start + s.config.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// A boundary must lie past the next chunk's overlap region,
			// otherwise the next chunk would not advance.
			end = findBoundary(runes, start+s.config.Overlap+1, end)
		}

		chunks = append(chunks, model.Chunk{
			DocumentFingerprint: fingerprint,
			Index:               index,
			Content:             string(runes[start:end]),
			StartPos:            start,
			EndPos:              end,
			Overlap:             overlap,
			Metadata:            model.Metadata{},
		})

		if end >= len(runes) {
			break
		}

		overlap = s.config.Overlap
		start = end - overlap
		index++
	}

	return chunks, nil
}

// findBoundary returns the cut position in (min, max] closest to max,
// preferring the end of a paragraph, then the end of a sentence. With no
// natural boundary in range, it cuts hard at max.
func findBoundary(runes []rune, min int, max int) int {
	if min < 1 {
		min = 1
	}

	for i := max; i > min; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}

	for i := max; i > min; i-- {
		if isSentenceEnd(runes, i) {
			return i
		}
	}

	return max
}

// isSentenceEnd reports whether position i sits just after sentence-ending
// punctuation followed by whitespace.
func isSentenceEnd(runes []rune, i int) bool {
	if i < 2 || i >= len(runes) {
		return false
	}
	r := runes[i-1]
	if r != ' ' && r != '\n' && r != '\t' {
		return false
	}
	p := runes[i-2]
	return p == '.' || p == '!' || p == '?'
}
