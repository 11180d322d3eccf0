package llm

import (
	"context"
	"io"
)

// FragmentStream yields fragments until io.EOF.
type FragmentStream interface {
	Recv() (Fragment, error)
	Close() error
}

// fragmentStream adapts a producer goroutine to FragmentStream.
type fragmentStream struct {
	cancel context.CancelFunc
	frags  chan Fragment
	done   chan struct{}
	err    error
}

// newFragmentStream runs produce on its own goroutine. The producer must stop
// sending once ctx is done; use sendFragment for that.
func newFragmentStream(ctx context.Context, produce func(ctx context.Context, out chan<- Fragment) error) FragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &fragmentStream{
		cancel: cancel,
		frags:  make(chan Fragment, 16),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.frags)
		s.err = produce(ctx, s.frags)
	}()
	return s
}

func (s *fragmentStream) Recv() (Fragment, error) {
	f, ok := <-s.frags
	if ok {
		return f, nil
	}
	<-s.done
	if s.err != nil {
		return Fragment{}, s.err
	}
	return Fragment{}, io.EOF
}

func (s *fragmentStream) Close() error {
	s.cancel()
	for range s.frags {
	}
	<-s.done
	return nil
}

// sendFragment delivers f unless ctx ends first.
func sendFragment(ctx context.Context, out chan<- Fragment, f Fragment) error {
	select {
	case out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sliceStream replays a fixed fragment list, then returns err (or io.EOF).
type sliceStream struct {
	frags []Fragment
	err   error
	pos   int
}

// NewSliceStream returns a stream that yields frags in order and then io.EOF.
func NewSliceStream(frags ...Fragment) FragmentStream {
	return &sliceStream{frags: frags}
}

// NewFailingStream yields frags in order and then fails with err.
func NewFailingStream(err error, frags ...Fragment) FragmentStream {
	return &sliceStream{frags: frags, err: err}
}

func (s *sliceStream) Recv() (Fragment, error) {
	if s.pos < len(s.frags) {
		f := s.frags[s.pos]
		s.pos++
		return f, nil
	}
	if s.err != nil {
		return Fragment{}, s.err
	}
	return Fragment{}, io.EOF
}

func (s *sliceStream) Close() error { return nil }

// Drain reads every fragment from stream until io.EOF.
func Drain(ctx context.Context, stream FragmentStream) ([]Fragment, error) {
	var out []Fragment
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		f, err := stream.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
