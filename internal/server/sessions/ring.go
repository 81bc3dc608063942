package sessions

import (
	"encoding/json"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
)

// TokenRing is a fixed-capacity FIFO of session token ids. Pushing into a
// full ring evicts the oldest token. The zero value uses
// common.SessionTokenCapacity.
type TokenRing struct {
	buf   []string
	start int
	size  int
}

func NewTokenRing(capacity int) *TokenRing {
	if capacity <= 0 {
		capacity = common.SessionTokenCapacity
	}
	return &TokenRing{buf: make([]string, capacity)}
}

func (r *TokenRing) init() {
	if r.buf == nil {
		r.buf = make([]string, common.SessionTokenCapacity)
	}
}

func (r *TokenRing) Cap() int {
	r.init()
	return len(r.buf)
}

func (r *TokenRing) Len() int { return r.size }

// Push appends token and returns the evicted token, if any.
func (r *TokenRing) Push(token string) (evicted string, ok bool) {
	r.init()
	if r.size == len(r.buf) {
		evicted = r.buf[r.start]
		r.buf[r.start] = token
		r.start = (r.start + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.start+r.size)%len(r.buf)] = token
	r.size++
	return "", false
}

// Remove deletes token, keeping the order of the others.
func (r *TokenRing) Remove(token string) bool {
	tokens := r.Tokens()
	for i, t := range tokens {
		if t != token {
			continue
		}
		r.reset(append(tokens[:i], tokens[i+1:]...))
		return true
	}
	return false
}

func (r *TokenRing) Contains(token string) bool {
	for i := 0; i < r.size; i++ {
		if r.buf[(r.start+i)%len(r.buf)] == token {
			return true
		}
	}
	return false
}

// Tokens returns the tokens oldest first.
func (r *TokenRing) Tokens() []string {
	out := make([]string, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *TokenRing) reset(tokens []string) {
	r.init()
	clear(r.buf)
	r.start, r.size = 0, 0
	for _, t := range tokens {
		r.Push(t)
	}
}

func (r *TokenRing) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Tokens())
}

// UnmarshalJSON loads an ordered token list. Lists longer than the capacity
// keep only the newest entries.
func (r *TokenRing) UnmarshalJSON(b []byte) error {
	var tokens []string
	if err := json.Unmarshal(b, &tokens); err != nil {
		return err
	}
	r.reset(tokens)
	return nil
}
