// Package words generates short, human-memorable identifiers by joining words
// picked at random from a fixed list.
package words

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// Separator joins the words of an identifier.
const Separator = "-"

var (
	// ErrLength indicates a requested identifier length is not in [1, Len()].
	ErrLength = errors.New("invalid identifier length")

	ErrEmpty     = errors.New("empty word list")
	ErrDuplicate = errors.New("duplicate word")
	ErrBadWord   = errors.New("word must only contain a-z and 0-9")
)

// List is an immutable, ordered list of distinct words. It is safe for
// concurrent use.
type List struct {
	words []string
}

var english = mustNew(wordlists.English)

// English returns the 2048 words of the BIP-39 English word list.
func English() *List {
	return english
}

// New validates ws and returns a list holding a copy of it.
func New(ws []string) (*List, error) {
	if len(ws) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		if !valid(w) {
			return nil, fmt.Errorf("%q: %w", w, ErrBadWord)
		}
		if _, ok := seen[w]; ok {
			return nil, fmt.Errorf("%q: %w", w, ErrDuplicate)
		}
		seen[w] = struct{}{}
	}
	l := &List{words: make([]string, len(ws))}
	copy(l.words, ws)
	return l, nil
}

// Load reads a word list, one word per line. Surrounding white space and
// blank lines are ignored.
func Load(r io.Reader) (*List, error) {
	var ws []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" {
			ws = append(ws, w)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(ws)
}

func mustNew(ws []string) *List {
	l, err := New(ws)
	if err != nil {
		panic(err)
	}
	return l
}

// Words must be usable verbatim as URL path segments and file names.
func valid(w string) bool {
	if w == "" {
		return false
	}
	for i := 0; i < len(w); i++ {
		c := w[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func (l *List) Len() int {
	return len(l.words)
}

// Check returns ErrLength if identifiers of n words cannot be generated.
func (l *List) Check(n int) error {
	if n < 1 || n > len(l.words) {
		return fmt.Errorf("%d words requested, list has %d: %w", n, len(l.words), ErrLength)
	}
	return nil
}

// Generate returns n distinct words, chosen uniformly at random, joined by
// Separator. There is no check against identifiers issued before.
func (l *List) Generate(n int) (string, error) {
	if err := l.Check(n); err != nil {
		return "", err
	}
	// Partial Fisher-Yates shuffle of the indices; only the swapped
	// positions are materialized.
	picked := make([]string, n)
	swapped := make(map[int]int, n)
	size := len(l.words)
	for i := 0; i < n; i++ {
		j := i + rand.Intn(size-i)
		vj, ok := swapped[j]
		if !ok {
			vj = j
		}
		vi, ok := swapped[i]
		if !ok {
			vi = i
		}
		swapped[j] = vi
		picked[i] = l.words[vj]
	}
	return strings.Join(picked, Separator), nil
}
