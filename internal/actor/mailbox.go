package actor

import "time"

// Message is one queued event for an actor.
type Message struct {
	Event     string
	Payload   string
	Timestamp time.Time
}

// mailbox is an unbounded FIFO of messages.
type mailbox struct {
	msgs []Message
}

func newMailbox() *mailbox {
	return &mailbox{msgs: make([]Message, 0, 8)}
}

func (m *mailbox) push(msg Message) {
	m.msgs = append(m.msgs, msg)
}

// pop removes and returns the oldest message.
func (m *mailbox) pop() (Message, bool) {
	if len(m.msgs) == 0 {
		return Message{}, false
	}
	msg := m.msgs[0]

	// Clear the slot so the backing array does not pin payload strings.
	m.msgs[0] = Message{}
	if len(m.msgs) == 1 {
		m.msgs = m.msgs[:0]
	} else {
		m.msgs = m.msgs[1:]
	}
	return msg, true
}

func (m *mailbox) len() int { return len(m.msgs) }

// snapshot returns a copy of the queued messages, oldest first.
func (m *mailbox) snapshot() []Message {
	out := make([]Message, len(m.msgs))
	copy(out, m.msgs)
	return out
}

func (m *mailbox) restore(msgs []Message) {
	m.msgs = make([]Message, len(msgs), len(msgs)+8)
	copy(m.msgs, msgs)
}
