package keysafe

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) *SQLBackend {
	t.Helper()

	backend, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "keysafe.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestSQLBackend_Contract(t *testing.T) {
	backendContract(t, openTestSQLite(t))
}

func TestSQLBackend_Policy(t *testing.T) {
	ctx := context.Background()
	backend := openTestSQLite(t)

	policy := AccessPolicy{Accessibility: AfterFirstUnlock, PerDevice: true}
	if err := backend.Insert(ctx, Item{Class: ClassGenericPassword, Account: "k", Data: []byte("x"), Access: policy}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := backend.Policy(ctx, ClassGenericPassword, "k")
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if got != policy {
		t.Fatalf("Policy = %+v, want %+v", got, policy)
	}

	if _, err := backend.Policy(ctx, ClassGenericPassword, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLBackend_ReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keysafe.db")

	first, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := Set(ctx, NewStore(first), "k", []string{"a", "b"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, found, err := Get[[]string](ctx, NewStore(second), "k")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Get = %v", got)
	}
}

func TestSQLBackend_Bind(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{"sqlite", "SELECT ? , ?"},
		{"mysql", "SELECT ? , ?"},
		{"postgres", "SELECT $1 , $2"},
	}

	for _, tt := range tests {
		b := &SQLBackend{dialect: sqlDialects[tt.dialect]}
		if got := b.bind("SELECT ? , ?"); got != tt.want {
			t.Fatalf("%s: bind = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	if _, err := OpenSQL(context.Background(), "oracle", "dsn"); err == nil {
		t.Fatal("expected unknown driver to be rejected")
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), " "); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
}
