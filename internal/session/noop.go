package session

import "context"

// NoopStore keeps nothing. It stands in when history is disabled or the
// database cannot be opened, so a chat runs the same either way: writes
// succeed, lookups find nothing, and Create still assigns an ID so the debug
// log and saved image names have one.
type NoopStore struct{}

var _ Store = (*NoopStore)(nil)

func (*NoopStore) Create(_ context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	return nil
}

func (*NoopStore) Update(context.Context, *Session) error { return nil }
func (*NoopStore) Delete(context.Context, string) error { return nil }
func (*NoopStore) AddMessage(context.Context, string, *Message) error { return nil }
func (*NoopStore) UpdateStatus(context.Context, string, SessionStatus) error { return nil }
func (*NoopStore) IncrementUserTurns(context.Context, string) error { return nil }
func (*NoopStore) SetCurrent(context.Context, string) error { return nil }
func (*NoopStore) Get(context.Context, string) (*Session, error) { return nil, nil }
func (*NoopStore) GetCurrent(context.Context) (*Session, error) { return nil, nil }
func (*NoopStore) Close() error { return nil }

func (*NoopStore) List(context.Context, ListOptions) ([]SessionSummary, error) { return nil, nil }

func (*NoopStore) Search(context.Context, string, int) ([]SearchResult, error) { return nil, nil }

func (*NoopStore) GetMessages(context.Context, string, int, int) ([]Message, error) {
	return nil, nil
}
