package splitter

import "unicode/utf8"

// MinChunkSize is the smallest chunk, in characters, worth splitting on
// boundaries. Below it the trimmer cuts the text directly.
const MinChunkSize = 140

// charsPerToken is the estimate used to turn a token overflow into a
// character budget.
const charsPerToken = 3

// Trimmer shortens text to a token budget, preferring paragraph, line and
// word boundaries over a hard cut.
type Trimmer struct {
	tokenizer Tokenizer
}

func NewTrimmer(tokenizer Tokenizer) *Trimmer {
	if tokenizer == nil {
		tokenizer = DefaultTokenizer()
	}
	return &Trimmer{tokenizer: tokenizer}
}

// Count returns the token length of text.
func (t *Trimmer) Count(text string) int {
	return t.tokenizer.Count(text)
}

// Trim returns the largest leading fragment of text that the splitter can
// produce within maxTokens. The result always satisfies
// Count(result) <= maxTokens.
func (t *Trimmer) Trim(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}

	length := t.tokenizer.Count(text)
	if length <= maxTokens {
		return text
	}

	runes := utf8.RuneCountInString(text)
	chunkSize := runes - (length-maxTokens)*charsPerToken
	if chunkSize < MinChunkSize {
		return t.hardCut(text, maxTokens)
	}

	trimmed := ""
	chunks, err := NewRecursiveCharacterTextSplitter(chunkSize, 0).SplitText(text)
	if err == nil && len(chunks) > 0 {
		trimmed = chunks[0]
	}

	// The splitter could not find a boundary that shrinks the text (a single
	// huge word, or no separators at all): cut to the budget and try again.
	if trimmed == "" || utf8.RuneCountInString(trimmed) >= runes {
		return t.Trim(prefix(text, chunkSize), maxTokens)
	}

	return t.Trim(trimmed, maxTokens)
}

// hardCut returns the longest rune prefix of text that fits maxTokens.
func (t *Trimmer) hardCut(text string, maxTokens int) string {
	lo, hi := 0, utf8.RuneCountInString(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.tokenizer.Count(prefix(text, mid)) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return prefix(text, lo)
}

func prefix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
