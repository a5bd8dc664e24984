package chunker

import (
	"fmt"
	"iter"
	"strings"

	"docsearch/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// WindowChunker splits text into overlapping character windows, preferring to
// end each window right after a sentence terminator.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

// NewWindowChunker validates the window parameters and returns a chunker.
func NewWindowChunker(chunkSize, overlap int) (*WindowChunker, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk collects all chunks of the document.
func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	seq, err := Split(document.ID, document.Content, c.chunkSize, c.overlap)
	if err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	for ch := range seq {
		chunks = append(chunks, ch)
	}
	return chunks, nil
}

// Split returns a lazy sequence of chunks for text. Windows are measured in
// characters. A window that does not reach the end of the text is cut after the
// last '.', '?' or '!' it contains, even when that leaves a short chunk. The next
// window starts overlap characters before the previous end. The sequence can be
// ranged over more than once.
func Split(documentID, text string, chunkSize, overlap int) (iter.Seq[domain.Chunk], error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	return func(yield func(domain.Chunk) bool) {
		idx := 0
		start := 0
		for start < len(runes) {
			end := start + chunkSize
			if end >= len(runes) {
				end = len(runes)
			} else if cut := lastTerminator(runes[start:end]); cut >= 0 {
				end = start + cut + 1
			}

			if s := strings.TrimSpace(string(runes[start:end])); s != "" {
				if !yield(domain.Chunk{DocumentID: documentID, Index: idx, Text: s}) {
					return
				}
				idx++
			}
			if end == len(runes) {
				return
			}

			next := end - overlap
			// a sentence cut shorter than the overlap would move the cursor backwards
			if next <= start {
				next = end
			}
			start = next
		}
	}, nil
}

func lastTerminator(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '?', '!':
			return i
		}
	}
	return -1
}

func validate(chunkSize, overlap int) error {
	if chunkSize < 1 || overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: chunk size %d with overlap %d", domain.ErrInvalidArgument, chunkSize, overlap)
	}
	return nil
}
