// Package mock provides a test double for the g2p.Converter interface.
//
// Responses are looked up by exact input text. Unknown text returns Default.
// All fields are safe to set before calling any method.
//
// Example:
//
//	c := &mock.Converter{Responses: map[string][]string{
//	    "hello": {"HH", "AH0", "L", "OW1"},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
)

// Call records a single invocation of Phonemes.
type Call struct {
	Ctx  context.Context
	Text string
}

// Converter is a mock implementation of g2p.Converter.
type Converter struct {
	mu sync.Mutex

	// Responses maps input text to the phonemes returned for it.
	Responses map[string][]string

	// Default is returned for text missing from Responses.
	Default []string

	// Err, if non-nil, is returned from every call.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Phonemes records the call and returns the configured response.
func (c *Converter) Phonemes(ctx context.Context, text string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, Call{Ctx: ctx, Text: text})
	if c.Err != nil {
		return nil, c.Err
	}
	if p, ok := c.Responses[text]; ok {
		return append([]string(nil), p...), nil
	}
	return append([]string(nil), c.Default...), nil
}

// CallCount returns the number of recorded calls.
func (c *Converter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Ensure Converter implements g2p.Converter at compile time.
var _ g2p.Converter = (*Converter)(nil)
