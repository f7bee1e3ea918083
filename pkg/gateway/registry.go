package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/cipher/pkg/persona"
)

// Session is one live websocket conversation.
type Session struct {
	ID      string
	Conv    persona.Conversation
	Ctx     context.Context
	Cancel  context.CancelFunc
	Created time.Time

	conn io.Closer
}

// SessionRegistry tracks live sessions so shutdown can drain them.
type SessionRegistry struct {
	sessions sync.Map
	count    atomic.Int64
	draining atomic.Bool
}

// ErrDuplicateSession is returned by Add when the session id is already live.
var ErrDuplicateSession = errors.New("gateway: duplicate session id")

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{}
}

// Add registers conv. Closing the registry cancels the session context and
// closes conn. An id that is already live is rejected and left untouched.
func (r *SessionRegistry) Add(conv persona.Conversation, conn io.Closer) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:      conv.SessionID(),
		Conv:    conv,
		Ctx:     ctx,
		Cancel:  cancel,
		Created: time.Now(),
		conn:    conn,
	}
	if _, loaded := r.sessions.LoadOrStore(sess.ID, sess); loaded {
		cancel()
		return nil, ErrDuplicateSession
	}
	r.count.Add(1)
	return sess, nil
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	if v, ok := r.sessions.Load(id); ok {
		return v.(*Session), true
	}
	return nil, false
}

func (r *SessionRegistry) Remove(id string) {
	if v, ok := r.sessions.LoadAndDelete(id); ok {
		sess := v.(*Session)
		if sess.Cancel != nil {
			sess.Cancel()
		}
		if sess.conn != nil {
			_ = sess.conn.Close()
		}
		r.count.Add(-1)
	}
}

func (r *SessionRegistry) CloseAll() {
	r.sessions.Range(func(key, _ any) bool {
		if id, ok := key.(string); ok {
			r.Remove(id)
		}
		return true
	})
}

func (r *SessionRegistry) Count() int64 {
	return r.count.Load()
}

func (r *SessionRegistry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *SessionRegistry) Draining() bool {
	return r.draining.Load()
}

func (r *SessionRegistry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
