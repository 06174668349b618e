package render

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Target. It backs tests and standalone runs
// where no external rendering surface is wired.
type Memory struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]Content // messageRef -> content
	byMsg    map[string]string  // messageRef -> containerRef
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]Content),
		byMsg:    make(map[string]string),
	}
}

func (m *Memory) CreateOrUpdate(_ context.Context, containerRef, messageRef string, content Content) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if messageRef == "" {
		m.nextID++
		messageRef = fmt.Sprintf("msg-%d", m.nextID)
	}
	m.messages[messageRef] = content
	m.byMsg[messageRef] = containerRef
	return messageRef, nil
}

func (m *Memory) Delete(_ context.Context, messageRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, messageRef)
	delete(m.byMsg, messageRef)
	return nil
}

// Message returns the current content of a message, if present.
func (m *Memory) Message(messageRef string) (Content, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.messages[messageRef]
	return c, ok
}
