package llm

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter estimates prompt size with a tiktoken encoding loaded on first
// use. Counting yields zero when the encoding cannot be loaded.
type TokenCounter struct {
	encoding string
	once     sync.Once
	encode   func(string) int
}

func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = defaultEncoding
	}
	return &TokenCounter{encoding: encoding}
}

// NewTokenCounterFunc builds a counter around a custom encoder.
func NewTokenCounterFunc(fn func(string) int) *TokenCounter {
	tc := &TokenCounter{encode: fn}
	tc.once.Do(func() {})
	return tc
}

func (tc *TokenCounter) load() {
	tc.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tc.encoding)
		if err != nil {
			log.Printf("llm: tiktoken encoding %s unavailable: %v", tc.encoding, err)
			tc.encode = func(string) int { return 0 }
			return
		}
		tc.encode = func(s string) int { return len(enc.Encode(s, nil, nil)) }
	})
}

func (tc *TokenCounter) CountText(s string) int {
	if tc == nil {
		return 0
	}
	tc.load()
	return tc.encode(s)
}

// Count sums the tokens of every block.
func (tc *TokenCounter) Count(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += tc.CountText(m.Content)
	}
	return total
}
