package interview

import (
	"fmt"
	"sync"

	"github.com/marcussrh/interview-console/pkg/realtime"
)

// MemoryKV holds facts the conversational agent chooses to remember
// about the candidate during the session. Values are plain strings;
// repeated writes to a key overwrite, last write wins. The store
// resets with the session.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

// Set stores a fact.
func (m *MemoryKV) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Get retrieves a fact.
func (m *MemoryKV) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Snapshot returns a copy of all stored facts.
func (m *MemoryKV) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Clear empties the store.
func (m *MemoryKV) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}

// SetMemoryTool returns the tool registration that lets the agent
// write into kv mid-conversation.
func SetMemoryTool(kv *MemoryKV) (realtime.ToolSpec, realtime.ToolHandler) {
	spec := realtime.ToolSpec{
		Name:        "set_memory",
		Description: "Saves important data about the user into memory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{
					"type":        "string",
					"description": "The key of the memory value. Always use lowercase and underscores, no other characters.",
				},
				"value": map[string]any{
					"type":        "string",
					"description": "Value can be anything represented as a string",
				},
			},
			"required": []string{"key", "value"},
		},
	}

	handler := func(args map[string]any) (any, error) {
		key, _ := args["key"].(string)
		value, ok := args["value"].(string)
		if key == "" || !ok {
			return nil, fmt.Errorf("set_memory requires string key and value, got %v", args)
		}
		kv.Set(key, value)
		return map[string]any{"ok": true}, nil
	}

	return spec, handler
}
