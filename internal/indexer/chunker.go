package indexer

import (
	"regexp"
	"strings"
)

// Default chunking parameters, tuned for clinical reference text where a
// complete mechanism description rarely fits in a short paragraph.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// chunkSeparators order boundaries from strongest to weakest: markdown
// headings, paragraph breaks, lines, sentences, words, characters.
var chunkSeparators = []string{
	"\n## ",
	"\n### ",
	"\n\n",
	"\n",
	". ",
	" ",
	"",
}

var (
	blankLineRe   = regexp.MustCompile(`\n\s*\n`)
	multiSpaceRe  = regexp.MustCompile(`[ ]{2,}`)
	controlCharRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")
)

// Chunker splits documents into overlapping chunks along semantic
// boundaries, strongest separator first.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a Chunker. Non-positive arguments fall back to the
// defaults; overlap is capped below chunkSize.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split chunks text and cleans each chunk of duplicate blank lines, runs of
// spaces and control characters. Empty chunks are dropped.
func (c *Chunker) Split(text string) []string {
	raw := c.split(text, chunkSeparators)

	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if cleaned := cleanChunk(chunk); cleaned != "" {
			chunks = append(chunks, cleaned)
		}
	}
	return chunks
}

// split recursively divides text by the strongest separator present, then
// merges the pieces back into chunks at most chunkSize long.
func (c *Chunker) split(text string, separators []string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	sep := ""
	var remaining []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			remaining = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return c.hardSplit(text)
	}

	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}

	// Oversize pieces recurse on weaker separators; runs of fitting pieces
	// merge with overlap.
	var final []string
	var fitting []string
	for _, p := range pieces {
		if len(p) <= c.chunkSize {
			fitting = append(fitting, p)
			continue
		}
		final = append(final, c.merge(fitting)...)
		fitting = nil
		final = append(final, c.split(p, remaining)...)
	}
	return append(final, c.merge(fitting)...)
}

// merge joins consecutive pieces into chunks up to chunkSize, carrying the
// trailing pieces forward so adjacent chunks share roughly overlap bytes.
func (c *Chunker) merge(pieces []string) []string {
	if len(pieces) == 0 {
		return nil
	}

	var chunks []string
	var window []string
	windowLen := 0

	for _, p := range pieces {
		if windowLen+len(p) > c.chunkSize && windowLen > 0 {
			chunks = append(chunks, strings.Join(window, ""))
			for windowLen > c.overlap && len(window) > 0 {
				windowLen -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		windowLen += len(p)
	}
	if windowLen > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

// hardSplit cuts text into fixed windows when no separator applies.
func (c *Chunker) hardSplit(text string) []string {
	step := c.chunkSize - c.overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + c.chunkSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

func cleanChunk(text string) string {
	text = blankLineRe.ReplaceAllString(text, "\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = controlCharRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// keywordRe matches capitalized phrases, a cheap stand-in for clinical term
// recognition that works well on textbook-style prose.
var keywordRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

var keywordStopwords = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "These": {}, "Those": {},
	"Note": {}, "Important": {}, "A": {}, "An": {},
}

// ExtractKeywords returns up to max capitalized phrases from text, skipping
// sentence-initial stopwords.
func ExtractKeywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	matches := keywordRe.FindAllString(text, -1)
	keywords := make([]string, 0, max)
	for _, kw := range matches {
		if _, stop := keywordStopwords[kw]; stop {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == max {
			break
		}
	}
	return keywords
}
