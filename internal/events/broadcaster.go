package events

// Subscriber represents a channel that receives events.
type Subscriber chan Event

// Subscribe adds a new subscriber and returns its channel.
// The channel has a buffer to prevent blocking on slow clients.
func (b *Bus) Subscribe() Subscriber {
	ch := make(Subscriber, 64) // Buffer to avoid blocking Emit
	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown or
// already closed subscribers are ignored.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// CloseAllSubscribers closes every subscriber channel, ending their streams.
func (b *Bus) CloseAllSubscribers() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]struct{})
}

// broadcast sends an event to all subscribers.
// Non-blocking: if a subscriber's buffer is full, the event is dropped for that subscriber.
func (b *Bus) broadcast(e Event) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- e:
		default:
			// Buffer full, drop event for this slow subscriber
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscribers)
}

// RecentEvents returns the last n events from the ring buffer.
// If n is greater than available events, returns all available.
func (b *Bus) RecentEvents(n int) []Event {
	return b.buffer.Last(n)
}

// EventsSince returns the buffered events numbered above seq, for readers
// resuming a stream.
func (b *Bus) EventsSince(seq uint64) []Event {
	return b.buffer.Since(seq)
}

// LastSeq returns the number of the newest event.
func (b *Bus) LastSeq() uint64 {
	return b.buffer.Seq()
}
