package chunker

import "fmt"

// Config controls the sliding window used to split text. Size and Overlap are
// measured in runes so multi-byte text never splits mid-character.
type Config struct {
	Size    int
	Overlap int
}

// Validate checks that the configuration describes a usable window
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Overlap, c.Size)
	}
	return nil
}

// Chunk is a contiguous span of the source text. Start and End are rune
// offsets into the original text, with End exclusive.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Split cuts text into overlapping windows. Each chunk after the first starts
// Size-Overlap runes after the previous one, so consecutive chunks share
// exactly Overlap runes; the final chunk may be shorter and always ends at the
// end of the text. The result is fully determined by the input and config.
func Split(text string, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []Chunk{}, nil
	}

	step := cfg.Size - cfg.Overlap
	chunks := make([]Chunk, 0, (len(runes)+step-1)/step)

	for start := 0; ; start += step {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}
