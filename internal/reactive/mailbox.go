package reactive

import "sync"

// mailbox is an unbounded FIFO drained by one goroutine into out.
type mailbox[T any] struct {
	mu       sync.Mutex
	queue    []T
	wake     chan struct{}
	done     chan struct{}
	out      chan T
	stopOnce sync.Once
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan T),
	}
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *mailbox[T]) run() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		var zero T
		next := m.queue[0]
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- next:
		case <-m.done:
			return
		}
	}
}
