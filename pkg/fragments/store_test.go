package fragments

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/markup/pkg/markup"
	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a SQLite database in a temp dir and a Store on top of it.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "fragments.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// Running it twice must be harmless.
	if err = SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema() failed: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, Fragment{Name: "nav", Body: "<nav></nav>", Trusted: true}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	f, err := s.Get(ctx, "nav")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if f.Body != "<nav></nav>" || !f.Trusted || f.UpdatedAt.IsZero() {
		t.Errorf("unexpected fragment: %+v", f)
	}

	if err = s.Put(ctx, Fragment{Name: "nav", Body: "<nav>v2</nav>"}); err != nil {
		t.Fatalf("Put() overwrite failed: %v", err)
	}
	f, _ = s.Get(ctx, "nav")
	if f.Body != "<nav>v2</nav>" || f.Trusted {
		t.Errorf("overwrite not applied: %+v", f)
	}

	if err = s.Put(ctx, Fragment{Body: "x"}); err == nil {
		t.Error("expected an error for an empty name")
	}
}

func TestStore_NotFoundAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = s.Put(ctx, Fragment{Name: "a", Body: "1"})
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted fragment still present: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Errorf("deleting a missing fragment should succeed, got %v", err)
	}
}

func TestStore_Import(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	doc := `
fragments:
  - name: nav
    trusted: true
    body: <nav>home</nav>
  - name: motd
    body: Tom & Jerry
`
	n, err := s.Import(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Import() wrote %d fragments, want 2", n)
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"motd", "nav"}, names); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	if n, err = s.Import(ctx, strings.NewReader("")); err != nil || n != 0 {
		t.Errorf("empty document: got %d, %v; want 0, nil", n, err)
	}
	if _, err = s.Import(ctx, strings.NewReader("fragments:\n  - body: nameless\n")); err == nil {
		t.Error("expected an error for a nameless fragment")
	}
	if _, err = s.Import(ctx, strings.NewReader("fragments: [")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestStore_LoadIntoTemplate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, Fragment{Name: "nav", Body: "<nav>home</nav>", Trusted: true})
	_ = s.Put(ctx, Fragment{Name: "motd", Body: "Tom & Jerry"})

	got, err := markup.HTML(ctx, []string{"<header>", "</header><p>", "</p>"},
		s.Load(ctx, "nav"),
		s.Load(ctx, "motd"),
	)
	if err != nil {
		t.Fatalf("HTML() failed: %v", err)
	}
	if want := "<header><nav>home</nav></header><p>Tom &amp; Jerry</p>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err = markup.HTML(ctx, []string{"", ""}, s.Load(ctx, "missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound through the template, got %v", err)
	}
}
