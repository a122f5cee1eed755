package worker

import "sync"

// mailbox is an unbounded FIFO of encoded frames. put never blocks, so
// posting a message never suspends the sender.
type mailbox struct {
	ready  chan struct{}
	frames [][]byte
	mu     sync.Mutex
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// put appends a frame. It reports false once the mailbox is closed.
func (m *mailbox) put(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.frames = append(m.frames, frame)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// take blocks until a frame is available. It reports false once the mailbox
// is closed; frames still queued at that point are abandoned.
func (m *mailbox) take() ([]byte, bool) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, false
		}
		if len(m.frames) > 0 {
			frame := m.frames[0]
			m.frames[0] = nil
			m.frames = m.frames[1:]
			m.mu.Unlock()
			return frame, true
		}
		m.mu.Unlock()
		<-m.ready
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.frames = nil
	close(m.ready)
}

