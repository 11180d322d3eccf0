package llm

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger logs requests and streamed fragments to JSONL files.
// Each session gets its own file based on the session ID.
type DebugLogger struct {
	baseDir   string
	sessionID string
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	closeOnce sync.Once
	closed    bool
}

// debugLogEntry is the common structure for all log entries
type debugLogEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // "request", "fragment", "stream_end" or "stream_error"
}

type debugRequestEntry struct {
	debugLogEntry
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	System   string         `json:"system,omitempty"`
	Thinking bool           `json:"thinking,omitempty"`
	Messages []debugMessage `json:"messages"`
}

type debugMessage struct {
	Role  string      `json:"role"`
	Parts []debugPart `json:"parts"`
}

// debugPart records binary payloads by size and hash only.
type debugPart struct {
	Text      string `json:"text,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Hash      string `json:"hash,omitempty"`
	Thought   bool   `json:"thought,omitempty"`
	Signature bool   `json:"signature,omitempty"`
}

type debugFragmentEntry struct {
	debugLogEntry
	Seq      int       `json:"seq"`
	Fragment debugPart `json:"fragment"`
}

type debugStreamEndEntry struct {
	debugLogEntry
	Fragments int    `json:"fragments"`
	Error     string `json:"error,omitempty"`
}

// NewDebugLogger creates a new debug logger that writes to the specified directory.
// Old log files (>7 days) are automatically cleaned up.
func NewDebugLogger(baseDir, sessionID string) (*DebugLogger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	_ = CleanupOldLogs(baseDir, 7*24*time.Hour)

	filename := filepath.Join(baseDir, sessionID+".jsonl")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &DebugLogger{
		baseDir:   baseDir,
		sessionID: sessionID,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

// Path returns the file the logger writes to.
func (l *DebugLogger) Path() string {
	if l == nil {
		return ""
	}
	return filepath.Join(l.baseDir, l.sessionID+".jsonl")
}

func (l *DebugLogger) header(kind string) debugLogEntry {
	return debugLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Type:      kind,
	}
}

// LogRequest logs a request.
func (l *DebugLogger) LogRequest(provider, model string, req Request) {
	if l == nil {
		return
	}

	logModel := req.Model
	if logModel == "" {
		logModel = model
	}

	messages := make([]debugMessage, len(req.Messages))
	for i, msg := range req.Messages {
		parts := make([]debugPart, len(msg.Parts))
		for j, p := range msg.Parts {
			parts[j] = debugPartFromPart(p)
		}
		messages[i] = debugMessage{Role: string(msg.Role), Parts: parts}
	}

	l.writeEntry(debugRequestEntry{
		debugLogEntry: l.header("request"),
		Provider:      provider,
		Model:         logModel,
		System:        req.System,
		Thinking:      req.Thinking,
		Messages:      messages,
	})
	// Flush requests immediately since they're infrequent and important
	l.Flush()
}

// LogFragment logs one streamed fragment.
func (l *DebugLogger) LogFragment(seq int, f Fragment) {
	if l == nil {
		return
	}
	l.writeEntry(debugFragmentEntry{
		debugLogEntry: l.header("fragment"),
		Seq:           seq,
		Fragment:      debugPartFromFragment(f),
	})
}

// LogStreamEnd records how a stream finished and flushes.
func (l *DebugLogger) LogStreamEnd(fragments int, err error) {
	if l == nil {
		return
	}
	entry := debugStreamEndEntry{debugLogEntry: l.header("stream_end"), Fragments: fragments}
	if err != nil {
		entry.Type = "stream_error"
		entry.Error = err.Error()
	}
	l.writeEntry(entry)
	l.Flush()
}

// Close closes the debug logger and flushes any buffered data.
// Close is idempotent and safe to call multiple times.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}

	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.file == nil {
			return
		}

		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

// writeEntry writes a single log entry as a JSON line.
// Does not flush the buffer - caller is responsible for flushing when appropriate.
func (l *DebugLogger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.writer.Write(data)
	l.writer.WriteString("\n")
}

// Flush flushes the buffered writer to disk.
func (l *DebugLogger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.writer == nil {
		return
	}
	l.writer.Flush()
}

func debugPartFromPart(p Part) debugPart {
	out := debugPart{Thought: p.Thought, Signature: len(p.ThoughtSig) > 0}
	if p.IsBlob() {
		out.MimeType = p.InlineData.MimeType
		out.Bytes = len(p.InlineData.Data)
		out.Hash = shortContentHash(p.InlineData.Data)
	} else {
		out.Text = p.Text
	}
	return out
}

func debugPartFromFragment(f Fragment) debugPart {
	out := debugPart{Thought: f.Thought, Signature: len(f.ThoughtSig) > 0}
	if f.IsText() {
		out.Text = f.Text
	} else {
		out.MimeType = f.MimeType
		out.Bytes = len(f.Data)
		out.Hash = shortContentHash(f.Data)
	}
	return out
}

func shortContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}

// CleanupOldLogs removes JSONL log files older than maxAge from the specified directory.
func CleanupOldLogs(baseDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(baseDir, entry.Name()))
		}
	}

	return nil
}

// loggingStream records every fragment it passes through.
type loggingStream struct {
	inner  FragmentStream
	logger *DebugLogger
	seq    int
	ended  bool
}

// WrapDebugStream logs the fragments of inner to logger. A nil logger returns
// inner unchanged.
func WrapDebugStream(logger *DebugLogger, inner FragmentStream) FragmentStream {
	if logger == nil {
		return inner
	}
	return &loggingStream{inner: inner, logger: logger}
}

func (s *loggingStream) Recv() (Fragment, error) {
	f, err := s.inner.Recv()
	if err != nil {
		if !s.ended {
			s.ended = true
			if errors.Is(err, io.EOF) {
				s.logger.LogStreamEnd(s.seq, nil)
			} else {
				s.logger.LogStreamEnd(s.seq, err)
			}
		}
		return f, err
	}
	s.logger.LogFragment(s.seq, f)
	s.seq++
	return f, nil
}

func (s *loggingStream) Close() error {
	return s.inner.Close()
}
