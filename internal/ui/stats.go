package ui

import (
	"fmt"
	"time"

	"github.com/samsaffron/gemchat/internal/llm"
)

// TurnStats tracks statistics for one assembled response.
type TurnStats struct {
	StartTime time.Time
	Snapshots int
	Parts     int
	Images    int
	Thoughts  int
	Bytes     int // total size of binary parts
	Duration  time.Duration
}

// NewTurnStats creates a new TurnStats with StartTime set to now.
func NewTurnStats() *TurnStats {
	return &TurnStats{StartTime: time.Now()}
}

// Snapshot counts a streaming snapshot.
func (s *TurnStats) Snapshot() {
	s.Snapshots++
}

// Finalize records the final parts and the elapsed time.
func (s *TurnStats) Finalize(parts []llm.Part) {
	s.Duration = time.Since(s.StartTime)
	s.Parts = len(parts)
	s.Images, s.Thoughts, s.Bytes = 0, 0, 0
	for _, p := range parts {
		switch {
		case p.IsBlob():
			s.Images++
			s.Bytes += len(p.InlineData.Data)
		case p.Thought:
			s.Thoughts++
		}
	}
}

// Render returns the stats as a compact single-line string.
func (s TurnStats) Render() string {
	out := fmt.Sprintf("Stats: %.1fs | %d parts", s.Duration.Seconds(), s.Parts)
	if s.Thoughts > 0 {
		out += fmt.Sprintf(" | %d thoughts", s.Thoughts)
	}
	if s.Images > 0 {
		out += fmt.Sprintf(" | %d images (%s)", s.Images, FormatBytes(s.Bytes))
	}
	if s.Snapshots > 0 {
		out += fmt.Sprintf(" | %d updates", s.Snapshots)
	}
	return out
}
