package llm

// MergeFragment folds a newly arrived fragment into the parts assembled so far.
//
// Text coalesces into the last part when that part is text with the same
// thought state; a signature on the incoming fragment replaces the part's
// signature. Any other text starts a new part. Binary fragments always start
// a new part. The slice may be modified in place; use the returned value.
func MergeFragment(parts []Part, f Fragment) []Part {
	if f.IsText() {
		if n := len(parts); n > 0 {
			last := &parts[n-1]
			if last.IsText() && last.Thought == f.Thought {
				last.Text += f.Text
				if len(f.ThoughtSig) > 0 {
					last.ThoughtSig = f.ThoughtSig
				}
				return parts
			}
		}
		return append(parts, Part{Text: f.Text, Thought: f.Thought, ThoughtSig: f.ThoughtSig})
	}

	return append(parts, Part{
		InlineData: &Blob{MimeType: f.MimeType, Data: f.Data},
		Thought:    f.Thought,
		ThoughtSig: f.ThoughtSig,
	})
}

// MergeAll folds every fragment in order into a fresh part list.
func MergeAll(fragments []Fragment) []Part {
	parts := make([]Part, 0, len(fragments))
	for _, f := range fragments {
		parts = MergeFragment(parts, f)
	}
	return parts
}
