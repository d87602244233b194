package splitter

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used to measure prompt sizes.
const DefaultEncoding = "cl100k_base"

// Tokenizer measures text in model tokens.
type Tokenizer interface {
	Count(text string) int
}

// Tiktoken counts tokens with a tiktoken BPE.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Approximate assumes roughly four runes per token. It is used when the BPE
// ranks cannot be loaded (tiktoken-go fetches them on first use).
type Approximate struct{}

func (Approximate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

var (
	defaultOnce      sync.Once
	defaultTokenizer Tokenizer
)

// NewTiktoken loads the named encoding, falling back to Approximate.
func NewTiktoken(encoding string) Tokenizer {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		slog.Warn("Falling back to approximate token counts", "encoding", encoding, "error", err)
		return Approximate{}
	}
	return &Tiktoken{enc: enc}
}

// DefaultTokenizer returns a process-wide tokenizer for DefaultEncoding.
func DefaultTokenizer() Tokenizer {
	defaultOnce.Do(func() {
		defaultTokenizer = NewTiktoken(DefaultEncoding)
	})
	return defaultTokenizer
}
