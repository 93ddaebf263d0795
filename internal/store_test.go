package internal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/chatstream/testutil"
)

// storeFactories builds every backend over a fresh location
func storeFactories() map[string]func(t *testing.T) SessionStore {
	return map[string]func(t *testing.T) SessionStore{
		"sqlite": func(t *testing.T) SessionStore {
			store, err := NewSQLiteStore(testutil.CreateInMemoryDB(t))
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			return store
		},
		"file": func(t *testing.T) SessionStore {
			store, err := NewFileStore(filepath.Join(testutil.CreateTempDir(t), "chats"))
			if err != nil {
				t.Fatalf("NewFileStore() error = %v", err)
			}
			return store
		},
		"memory": func(t *testing.T) SessionStore {
			return NewMemoryStore()
		},
	}
}

func TestSessionStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			messages := CreateTestTranscript()
			if err := store.Put(ctx, "1", messages, "todo-app", "Todo App"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			item, err := store.Get(ctx, "1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if item.URLID != "todo-app" || item.Description != "Todo App" {
				t.Errorf("Get() = %+v", item)
			}
			if len(item.Messages) != len(messages) {
				t.Fatalf("Get() returned %d messages, want %d", len(item.Messages), len(messages))
			}
			for i := range messages {
				if item.Messages[i] != messages[i] {
					t.Errorf("message %d = %+v, want %+v", i, item.Messages[i], messages[i])
				}
			}
			if item.GetTimestamp().IsZero() {
				t.Errorf("Timestamp %q should be RFC3339", item.Timestamp)
			}

			byURL, err := store.GetByURLID(ctx, "todo-app")
			if err != nil {
				t.Fatalf("GetByURLID() error = %v", err)
			}
			if byURL.ID != "1" {
				t.Errorf("GetByURLID() id = %q, want 1", byURL.ID)
			}
		})
	}
}

func TestSessionStore_PutOverwritesMessages(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			if err := store.Put(ctx, "1", CreateTestTranscript(), "", ""); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			short := []ChatMessage{{ID: "u9", Role: RoleUser, Content: "only"}}
			if err := store.Put(ctx, "1", short, "", "Renamed"); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			item, err := store.Get(ctx, "1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if len(item.Messages) != 1 || item.Messages[0].Content != "only" {
				t.Errorf("messages not overwritten: %+v", item.Messages)
			}
			if item.Description != "Renamed" {
				t.Errorf("Description = %q, want Renamed", item.Description)
			}

			items, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(items) != 1 {
				t.Errorf("List() returned %d items, want 1", len(items))
			}
		})
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			if _, err := store.Get(ctx, "404"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
			if _, err := store.GetByURLID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByURLID() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSessionStore_AllocateURLID(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			want := []string{"todo-app", "todo-app-2", "todo-app-3"}
			for i, w := range want {
				got, err := store.AllocateURLID(ctx, "todo-app")
				if err != nil {
					t.Fatalf("AllocateURLID() error = %v", err)
				}
				if got != w {
					t.Fatalf("AllocateURLID() #%d = %q, want %q", i, got, w)
				}
				if err := store.Put(ctx, string(rune('1'+i)), nil, got, ""); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			}
		})
	}
}

func TestSessionStore_AllocateURLID_Slug(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		seed string
		want string
	}{
		{seed: "Todo App", want: "todo-app"},
		{seed: "snake-game", want: "snake-game"},
		{seed: "  ", want: "chat"},
		{seed: "!!!", want: "chat"},
	}

	store := NewMemoryStore()
	for _, tt := range tests {
		t.Run(tt.seed, func(t *testing.T) {
			got, err := store.AllocateURLID(ctx, tt.seed)
			if err != nil {
				t.Fatalf("AllocateURLID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AllocateURLID(%q) = %q, want %q", tt.seed, got, tt.want)
			}
		})
	}
}

func TestSessionStore_AllocateNextID(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			first, err := store.AllocateNextID(ctx)
			if err != nil {
				t.Fatalf("AllocateNextID() error = %v", err)
			}
			if first != "1" {
				t.Errorf("AllocateNextID() on empty store = %q, want 1", first)
			}

			// handed out but not yet written
			second, _ := store.AllocateNextID(ctx)
			if second != "2" {
				t.Errorf("AllocateNextID() = %q, want 2", second)
			}

			if err := store.Put(ctx, "41", nil, "", ""); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			third, _ := store.AllocateNextID(ctx)
			if third != "42" {
				t.Errorf("AllocateNextID() after id 41 = %q, want 42", third)
			}
		})
	}
}

func TestSessionStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryStore()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		at := base.Add(time.Duration(i) * 1500 * time.Millisecond)
		memory.now = func() time.Time { return at }
		if err := memory.Put(ctx, id, nil, "", ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	items, err := memory.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := []string{items[0].ID, items[1].ID, items[2].ID}
	want := []string{"3", "2", "1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Put(ctx, "1", CreateTestTranscript(), "todo-app", "")
	_ = store.Put(ctx, "2", nil, "1", "")

	tests := []struct {
		name    string
		mixedID string
		wantID  string
		wantErr error
	}{
		{name: "by urlId", mixedID: "todo-app", wantID: "1"},
		{name: "id wins over urlId", mixedID: "1", wantID: "1"},
		{name: "missing", mixedID: "nope", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := Resolve(ctx, store, tt.mixedID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if item.ID != tt.wantID {
				t.Errorf("Resolve() id = %q, want %q", item.ID, tt.wantID)
			}
		})
	}
}

func TestUpdateDescription(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Put(ctx, "1", CreateTestTranscript(), "todo-app", "Todo App")

	item, err := UpdateDescription(ctx, store, "1", "  My todos  ")
	if err != nil {
		t.Fatalf("UpdateDescription() error = %v", err)
	}
	if item.Description != "My todos" {
		t.Errorf("Description = %q, want trimmed", item.Description)
	}

	stored, _ := store.Get(ctx, "1")
	if stored.Description != "My todos" || stored.URLID != "todo-app" || len(stored.Messages) != 2 {
		t.Errorf("stored item = %+v", stored)
	}

	_, err = UpdateDescription(ctx, store, "1", "x")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("UpdateDescription() error = %v, want ValidationError", err)
	}
	stored, _ = store.Get(ctx, "1")
	if stored.Description != "My todos" {
		t.Errorf("rejected description should not be written, got %q", stored.Description)
	}

	if _, err := UpdateDescription(ctx, store, "404", "Valid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDescription() on missing chat error = %v, want ErrNotFound", err)
	}
}

func TestOpenStore(t *testing.T) {
	dir := testutil.CreateTempDir(t)

	tests := []struct {
		kind    string
		wantErr bool
	}{
		{kind: StoreSQLite},
		{kind: StoreFile},
		{kind: StoreMemory},
		{kind: "redis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			store, err := OpenStore(tt.kind, filepath.Join(dir, tt.kind))
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}
