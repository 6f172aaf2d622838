// Package memory contains an in-process publisher used when no broker is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher records JSON-encoded payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// Message captures one publish call.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes payload as JSON, records it, and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data})
	return id, nil
}

// Messages returns the recorded publishes for topic, or all of them when topic is empty.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, 0, len(p.messages))
	for _, msg := range p.messages {
		if topic != "" && msg.Topic != topic {
			continue
		}
		msg.Data = append([]byte(nil), msg.Data...)
		out = append(out, msg)
	}
	return out
}
