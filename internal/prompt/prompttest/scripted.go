// Package prompttest provides a scripted prompt.Model for tests.
package prompttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/herodrop/rewards-service/internal/prompt"
)

// Responder computes a response from the rendered request.
type Responder func(req prompt.Request) (string, error)

// ScriptedModel replays canned responses per prompt name and records every request.
// When a prompt's queue holds one response left, that response is reused.
type ScriptedModel struct {
	mu     sync.Mutex
	queues map[string][]Responder
	calls  []prompt.Request
}

func New() *ScriptedModel {
	return &ScriptedModel{queues: make(map[string][]Responder)}
}

// Returns queues a JSON response for the named prompt.
func (m *ScriptedModel) Returns(name, json string) *ScriptedModel {
	return m.Func(name, func(prompt.Request) (string, error) { return json, nil })
}

// Fails queues an error for the named prompt.
func (m *ScriptedModel) Fails(name string, err error) *ScriptedModel {
	return m.Func(name, func(prompt.Request) (string, error) { return "", err })
}

// Func queues a responder for the named prompt.
func (m *ScriptedModel) Func(name string, r Responder) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[name] = append(m.queues[name], r)
	return m
}

func (m *ScriptedModel) GenerateJSON(ctx context.Context, req prompt.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	queue := m.queues[req.Name]
	if len(queue) == 0 {
		m.mu.Unlock()
		return "", fmt.Errorf("prompttest: no response scripted for %q", req.Name)
	}
	r := queue[0]
	if len(queue) > 1 {
		m.queues[req.Name] = queue[1:]
	}
	m.mu.Unlock()
	return r(req)
}

// Calls returns a copy of the recorded requests.
func (m *ScriptedModel) Calls() []prompt.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]prompt.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount counts recorded requests for the named prompt.
func (m *ScriptedModel) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}
