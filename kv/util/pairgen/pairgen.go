// Package pairgen produces files of unique key=value pairs for loading and benchmarking a cluster. Keys and values are
// drawn from a vocabulary built out of a word list.
package pairgen

import (
	"bufio"
	"io"
	"math/rand"
	"strings"

	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/wal"
)

var ErrVocabularyTooSmall = errors.New("pairgen: vocabulary too small for the requested number of pairs")

const letters = "abcdefghijklmnopqrstuvwxyz"

func randLetter(r *rand.Rand) string {
	return string(letters[r.Intn(len(letters))])
}

// ReadWords reads one word per line, lowercased. Blank lines and words containing the pair delimiter are dropped.
func ReadWords(rd io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		w := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if w == "" || strings.Contains(w, wal.Delimiter) || strings.ContainsAny(w, " \t") {
			continue
		}
		words = append(words, w)
	}
	return words, errors.Trace(scanner.Err())
}

// Vocabulary expands every word into three entries: the word, the word plus a random letter, and that plus one more.
func Vocabulary(words []string, r *rand.Rand) []string {
	vocab := make([]string, 0, 3*len(words))
	for _, w := range words {
		first, second := randLetter(r), randLetter(r)
		vocab = append(vocab, w, w+first, w+first+second)
	}
	return vocab
}

func distinct(vocab []string) int {
	seen := make(map[string]struct{}, len(vocab))
	for _, w := range vocab {
		seen[w] = struct{}{}
	}
	return len(seen)
}

// Generator hands out pairs whose keys never repeat and whose value always differs from the key.
type Generator struct {
	vocab []string
	r     *rand.Rand
	used  map[string]struct{}
	limit int
}

func NewGenerator(vocab []string, r *rand.Rand) *Generator {
	return &Generator{
		vocab: vocab,
		r:     r,
		used:  make(map[string]struct{}),
		limit: distinct(vocab),
	}
}

// Next returns the next pair. It fails once every distinct vocabulary entry has been used as a key.
func (g *Generator) Next() (string, string, error) {
	if g.limit < 2 || len(g.used) >= g.limit {
		return "", "", errors.Trace(ErrVocabularyTooSmall)
	}
	n := len(g.vocab)
	for {
		key := g.vocab[g.r.Intn(n)]
		if _, ok := g.used[key]; ok {
			continue
		}
		value := g.vocab[g.r.Intn(n)]
		for value == key {
			value = g.vocab[g.r.Intn(n)]
		}
		g.used[key] = struct{}{}
		return key, value, nil
	}
}

// Write writes count pairs to w, one key=value line each.
func Write(w io.Writer, vocab []string, count int, r *rand.Rand) error {
	if count > distinct(vocab) {
		return errors.Annotatef(ErrVocabularyTooSmall, "%d pairs from %d distinct entries", count, distinct(vocab))
	}
	g := NewGenerator(vocab, r)
	bw := bufio.NewWriter(w)
	for i := 0; i < count; i++ {
		k, v, err := g.Next()
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(k + wal.Delimiter + v + "\n"); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}
