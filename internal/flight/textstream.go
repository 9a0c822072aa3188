package flight

import (
	"context"
	"strings"
	"sync"
)

// TextStream is a finite, append-only sequence of text chunks with any
// number of subscribers. A subscriber attaching mid-stream first replays
// everything appended so far and then follows live until the stream
// finishes. The producer appends chunks and finishes exactly once; the
// terminal marker (or error) is guaranteed to every subscriber.
type TextStream struct {
	mu sync.Mutex

	chunks   []string
	finished bool
	err      error

	// notify is closed and replaced on every state change, waking any
	// subscriber blocked waiting for more chunks.
	notify chan struct{}
}

// NewTextStream creates an empty, open stream.
func NewTextStream() *TextStream {
	return &TextStream{
		notify: make(chan struct{}),
	}
}

// Append publishes one chunk. Appending after Finish is ignored.
func (s *TextStream) Append(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}

	s.chunks = append(s.chunks, chunk)
	s.wakeLocked()
}

// Finish terminates the stream. A nil err is the normal end-of-stream
// marker; a non-nil err is delivered to every subscriber after the replayed
// chunks. Only the first call has any effect.
func (s *TextStream) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}

	s.finished = true
	s.err = err
	s.wakeLocked()
}

// wakeLocked broadcasts a state change. Callers hold s.mu.
func (s *TextStream) wakeLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// Err returns the stream's terminal error, or nil if it finished cleanly or
// is still open.
func (s *TextStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Text returns the full text appended so far.
func (s *TextStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return strings.Join(s.chunks, "")
}

// Subscribe returns a channel of chunks starting from the beginning of the
// stream. The channel is closed after the final chunk; the subscriber then
// checks Err for the terminal outcome. Cancelling ctx detaches only this
// subscriber.
func (s *TextStream) Subscribe(ctx context.Context) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		next := 0
		for {
			s.mu.Lock()
			pending := s.chunks[next:]
			finished := s.finished
			notify := s.notify
			s.mu.Unlock()

			for _, chunk := range pending {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			next += len(pending)

			if finished {
				return
			}

			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Collect drains a subscription into the full text, returning the stream's
// terminal error. It is the non-streaming consumption path.
func (s *TextStream) Collect(ctx context.Context) (string, error) {
	var b strings.Builder
	for chunk := range s.Subscribe(ctx) {
		b.WriteString(chunk)
	}

	if ctx.Err() != nil {
		return b.String(), ctx.Err()
	}

	if err := s.Err(); err != nil {
		return b.String(), err
	}

	return b.String(), nil
}
