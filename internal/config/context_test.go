// Package config provides context persistence tests.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContext_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{
			name: "empty context",
			ctx:  Context{},
			want: true,
		},
		{
			name: "with room only",
			ctx:  Context{RoomID: "!room:example.org"},
			want: false,
		},
		{
			name: "with user only",
			ctx:  Context{UserID: "@alice:example.org"},
			want: false,
		},
		{
			name: "with both",
			ctx:  Context{RoomID: "!room:example.org", UserID: "@alice:example.org"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.IsEmpty(); got != tt.want {
				t.Errorf("Context.IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_HasRoom(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{
			name: "empty",
			ctx:  Context{},
			want: false,
		},
		{
			name: "with room",
			ctx:  Context{RoomID: "!room:example.org"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.HasRoom(); got != tt.want {
				t.Errorf("Context.HasRoom() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_String(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{
			name: "empty",
			ctx:  Context{},
			want: "(no context set)",
		},
		{
			name: "room only with name",
			ctx:  Context{RoomID: "!room:example.org", RoomName: "general"},
			want: "room:general",
		},
		{
			name: "room only without name",
			ctx:  Context{RoomID: "!room:example.org"},
			want: "room:!room:ex",
		},
		{
			name: "user only",
			ctx:  Context{UserID: "@alice:example.org"},
			want: "user:@alice:example.org",
		},
		{
			name: "both",
			ctx:  Context{RoomID: "!room:example.org", RoomName: "general", UserID: "@alice:example.org"},
			want: "room:general user:@alice:example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.String(); got != tt.want {
				t.Errorf("Context.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContext_SetRoom(t *testing.T) {
	ctx := &Context{}
	ctx.SetRoom("!room:example.org", "general")

	if ctx.RoomID != "!room:example.org" {
		t.Errorf("RoomID = %v, want !room:example.org", ctx.RoomID)
	}
	if ctx.RoomName != "general" {
		t.Errorf("RoomName = %v, want general", ctx.RoomName)
	}
}

func TestContext_Clear(t *testing.T) {
	ctx := &Context{
		RoomID:   "!room:example.org",
		RoomName: "general",
		UserID:   "@alice:example.org",
	}

	ctx.Clear()

	if !ctx.IsEmpty() {
		t.Error("context should be empty after Clear()")
	}
}

func TestContextStore_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewContextStore(filepath.Join(tmpDir, "context.yaml"))

	ctx := &Context{
		RoomID:   "!room:example.org",
		RoomName: "general",
		UserID:   "@alice:example.org",
	}

	// Save
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Load
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.RoomID != ctx.RoomID {
		t.Errorf("RoomID = %v, want %v", loaded.RoomID, ctx.RoomID)
	}
	if loaded.RoomName != ctx.RoomName {
		t.Errorf("RoomName = %v, want %v", loaded.RoomName, ctx.RoomName)
	}
	if loaded.UserID != ctx.UserID {
		t.Errorf("UserID = %v, want %v", loaded.UserID, ctx.UserID)
	}
}

func TestContextStore_LoadEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewContextStore(filepath.Join(tmpDir, "context.yaml"))

	// Load non-existent file should return empty context
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !loaded.IsEmpty() {
		t.Error("Load() should return empty context for non-existent file")
	}
}

func TestContextStore_Clear(t *testing.T) {
	tmpDir := t.TempDir()
	contextPath := filepath.Join(tmpDir, "context.yaml")
	store := NewContextStore(contextPath)

	ctx := &Context{
		RoomID:   "!room:example.org",
		RoomName: "general",
	}

	// Save first
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(contextPath); os.IsNotExist(err) {
		t.Fatal("context file should exist after save")
	}

	// Clear
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	// Verify file is removed
	if _, err := os.Stat(contextPath); !os.IsNotExist(err) {
		t.Error("context file should be removed after clear")
	}

	// Load after clear should return empty
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() after Clear() error = %v", err)
	}
	if !loaded.IsEmpty() {
		t.Error("Load() after Clear() should return empty context")
	}
}
