package llm

import (
	"context"
	"sync"
)

// Call is one recorded completion request.
type Call struct {
	Messages []Message
	Opts     Options
}

// Fake is a scripted Engine. Reply, when set, computes each answer;
// otherwise Replies are returned in order and the last one repeats.
type Fake struct {
	mu      sync.Mutex
	Reply   func(messages []Message, opts Options) (string, error)
	Replies []string
	Err     error
	PingErr error
	calls   []Call
	pings   int
}

func (f *Fake) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Messages: messages, Opts: opts})
	n := len(f.calls)
	reply, replies, err := f.Reply, f.Replies, f.Err
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reply != nil {
		return reply(messages, opts)
	}
	if err != nil {
		return "", err
	}
	if len(replies) == 0 {
		return "", nil
	}
	if n > len(replies) {
		n = len(replies)
	}
	return replies[n-1], nil
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.PingErr
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}
