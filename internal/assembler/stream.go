package assembler

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/samsaffron/gemchat/internal/image"
	"github.com/samsaffron/gemchat/internal/llm"
)

// State is the phase of a streaming assembly run.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateResolving
	StateFinished
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateResolving:
		return "resolving"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// StreamError is the terminal error of a run whose provider stream failed.
// Its message is the original error's message.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// Stream consumes src and yields a snapshot of the full part list: one empty
// snapshot up front and one after every fragment. Each snapshot is a fresh
// slice the caller may keep.
//
// The sequence ends after the stream's io.EOF, or with a single non-nil error:
// *StreamError when src fails, ctx.Err() when ctx is cancelled. On
// cancellation no further images are resolved and a resolution already in
// flight is discarded.
func (a *Assembler) Stream(ctx context.Context, src llm.FragmentStream) iter.Seq2[[]llm.Part, error] {
	return func(yield func([]llm.Part, error) bool) {
		defer src.Close()

		r := &run{a: a, bufIdx: -1, blankTail: -1, spliceBlob: -1, group: -1}
		if !yield(r.snapshot(), nil) {
			return
		}
		r.setState(StateAccumulating)

		abort := func(err error) {
			r.setState(StateAborted)
			if r.dropBlankTail() && !yield(r.snapshot(), nil) {
				return
			}
			yield(nil, err)
		}

		for {
			if err := ctx.Err(); err != nil {
				abort(err)
				return
			}

			f, err := src.Recv()
			if errors.Is(err, io.EOF) {
				r.setState(StateFinished)
				if r.dropBlankTail() {
					yield(r.snapshot(), nil)
				}
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					abort(ctxErr)
					return
				}
				r.setState(StateAborted)
				yield(nil, &StreamError{Err: err})
				return
			}

			if !r.add(ctx, f) {
				abort(ctx.Err())
				return
			}
			if !yield(r.snapshot(), nil) {
				return
			}
		}
	}
}

// run is the state of one streaming assembly.
type run struct {
	a     *Assembler
	parts []llm.Part
	state State

	// The pending text buffer is parts[bufIdx].Text[bufOff:]. bufIdx is -1
	// when the tail is not a text part that can still receive a reference.
	bufIdx int
	bufOff int

	// blankTail is the index of a tail part holding only the text that
	// followed the last spliced reference, or -1. It is dropped if it is
	// still whitespace when nothing more can join it.
	blankTail int

	// spliceBlob is the index of the image part a splice ended with, or -1.
	spliceBlob int

	// group is the index of the first part expanded from the tail text part,
	// or -1 when the tail is not text. Parts from group onward are what a
	// one-pass assembly would produce from that single merged part, and only
	// the last of them carries its thought signature.
	group int
}

func (r *run) setState(s State) {
	if r.state == s {
		return
	}
	r.a.logger.Debug("assembler state", "from", r.state, "to", s)
	r.state = s
}

func (r *run) snapshot() []llm.Part {
	return llm.CloneParts(r.parts)
}

// add merges f and runs a resolution pass if the buffer now holds a complete
// reference. It returns false, with the run rolled back to its state before
// f, when ctx is cancelled while resolving.
func (r *run) add(ctx context.Context, f llm.Fragment) bool {
	saved := *r
	saved.parts = llm.CloneParts(r.parts)

	// A blank part left by a splice only survives if f joins it.
	if last := len(r.parts) - 1; last >= 0 && r.blankTail == last && !joinsTail(r.parts[last], f) {
		r.dropBlankTail()
	}

	prevLen := len(r.parts)
	r.parts = llm.MergeFragment(r.parts, f)
	joined := len(r.parts) == prevLen
	if !joined {
		r.blankTail = -1
		switch {
		case f.IsText() && prevLen > 0 && r.spliceBlob == prevLen-1 && r.parts[prevLen-1].Thought == f.Thought:
			// Text right after a spliced image continues that image's text part.
			r.blankTail = prevLen
			joined = true
		case f.IsText():
			r.group = prevLen
		default:
			r.group = -1
		}
	}
	if joined {
		r.settleSig()
	}

	if !r.a.opts.ResolveImages {
		return true
	}

	if !f.IsText() {
		r.bufIdx = -1
		return true
	}
	if last := len(r.parts) - 1; r.bufIdx != last {
		r.bufIdx, r.bufOff = last, 0
	}

	tail := r.parts[r.bufIdx]
	buffer := tail.Text[r.bufOff:]
	parsed, ok := image.ParseIfComplete(buffer)
	if !ok {
		r.advanceBuffer(buffer)
		return true
	}

	r.setState(StateResolving)
	refs := parsed.Refs()
	results := r.a.resolve(ctx, refs)
	if ctx.Err() != nil {
		saved.state = r.state
		*r = saved
		return false
	}

	replacement, trailing := expandPart(tail, r.bufOff, parsed, results, true)
	r.parts = append(r.parts[:r.bufIdx], replacement...)

	resolved := 0
	for _, res := range results {
		if res != nil {
			resolved++
		}
	}
	r.a.logger.Debug("spliced image references", "refs", len(refs), "resolved", resolved, "parts", len(r.parts))

	r.bufIdx, r.blankTail, r.spliceBlob = -1, -1, -1
	if last := len(r.parts) - 1; last >= 0 {
		if r.parts[last].IsText() {
			r.bufIdx = last
			r.bufOff = len(r.parts[last].Text) - trailing
			if trailing == len(r.parts[last].Text) {
				r.blankTail = last
			}
		} else {
			r.spliceBlob = last
		}
	}
	r.setState(StateAccumulating)
	return true
}

// settleSig leaves the group's latest thought signature on its last part
// only. MergeFragment has already applied the later-wins rule to the tail.
func (r *run) settleSig() {
	last := len(r.parts) - 1
	if r.group < 0 || r.group >= last {
		return
	}
	var sig []byte
	for i := last; i >= r.group && len(sig) == 0; i-- {
		sig = r.parts[i].ThoughtSig
	}
	for i := r.group; i < last; i++ {
		r.parts[i].ThoughtSig = nil
	}
	r.parts[last].ThoughtSig = sig
}

func joinsTail(tail llm.Part, f llm.Fragment) bool {
	return f.IsText() && tail.IsText() && tail.Thought == f.Thought
}

// advanceBuffer moves the buffer start past text that cannot begin a
// reference, so each fragment only rescans the unresolved remainder.
func (r *run) advanceBuffer(buffer string) {
	if i := strings.Index(buffer, "!["); i >= 0 {
		r.bufOff += i
		return
	}
	skip := len(buffer)
	if strings.HasSuffix(buffer, "!") {
		skip--
	}
	r.bufOff += skip
}

// dropBlankTail removes a whitespace-only part left behind by the last splice. It
// reports whether the part list changed.
func (r *run) dropBlankTail() bool {
	last := len(r.parts) - 1
	if last < 0 || r.blankTail != last || !isBlankText(r.parts[last]) {
		return false
	}
	sig := r.parts[last].ThoughtSig
	r.parts = r.parts[:last]
	if len(sig) > 0 && last > 0 {
		r.parts[last-1].ThoughtSig = sig
	}
	r.blankTail, r.bufIdx = -1, -1
	if r.group >= last {
		r.group = -1
	}
	return true
}
