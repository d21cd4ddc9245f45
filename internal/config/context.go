package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context represents the current CLI context (selected room and acting user).
type Context struct {
	// RoomID is the currently selected room.
	RoomID string `yaml:"room,omitempty"`
	// RoomName is the human-readable room name (for display).
	RoomName string `yaml:"room_name,omitempty"`
	// UserID is the acting user for read-state queries.
	UserID string `yaml:"user,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no context is set.
func (c *Context) IsEmpty() bool {
	return c.RoomID == "" && c.UserID == ""
}

// HasRoom returns true if a room is set.
func (c *Context) HasRoom() bool {
	return c.RoomID != ""
}

// HasUser returns true if a user is set.
func (c *Context) HasUser() bool {
	return c.UserID != ""
}

// Clear removes all context.
func (c *Context) Clear() {
	c.RoomID = ""
	c.RoomName = ""
	c.UserID = ""
	c.UpdatedAt = time.Now()
}

// SetRoom sets the room context.
func (c *Context) SetRoom(id, name string) {
	c.RoomID = id
	c.RoomName = name
	c.UpdatedAt = time.Now()
}

// SetUser sets the acting user.
func (c *Context) SetUser(id string) {
	c.UserID = id
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no context set)"
	}
	var parts []string
	if c.HasRoom() {
		name := c.RoomName
		if name == "" {
			name = shortID(c.RoomID)
		}
		parts = append(parts, fmt.Sprintf("room:%s", name))
	}
	if c.HasUser() {
		parts = append(parts, fmt.Sprintf("user:%s", c.UserID))
	}
	if len(parts) == 0 {
		return "(no context set)"
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += " " + parts[i]
	}
	return result
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/roomline/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "roomline", "context.yaml")
	}
	return &ContextStore{path: path}
}

// DefaultContextStore returns a context store using the default path.
func DefaultContextStore() *ContextStore {
	return NewContextStore("")
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
