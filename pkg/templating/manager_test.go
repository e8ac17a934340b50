package templating

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/markup/pkg/fragments"
	"github.com/CTAG07/markup/pkg/markup"
	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

// mapLoader serves fragments from memory.
type mapLoader map[string]any

func (m mapLoader) Load(ctx context.Context, name string) *markup.Future {
	v, ok := m[name]
	if !ok {
		return markup.Rejected(fmt.Errorf("no fragment %q", name))
	}
	return markup.Resolved(v)
}

// writeTemplate is a helper to create a template file inside dir.
func writeTemplate(tb testing.TB, dir, name, content string) {
	tb.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		tb.Fatalf("failed to write template %s: %v", name, err)
	}
}

// setupTestManager creates a TemplateManager over a temp data dir holding one
// template.
func setupTestManager(tb testing.TB, loader FragmentLoader) *TemplateManager {
	tb.Helper()

	dataDir := tb.TempDir()
	templatesPath := filepath.Join(dataDir, "templates")
	if err := os.Mkdir(templatesPath, 0755); err != nil {
		tb.Fatalf("failed to create templates dir: %v", err)
	}
	writeTemplate(tb, templatesPath, "page.tmpl.html",
		`<title>{{title}}</title>{{fragment nav}}<main>{{raw body}}</main><p>{{items}}</p>`)
	// Files with another extension are ignored.
	writeTemplate(tb, templatesPath, "notes.txt", "{{ignored")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm, err := NewTemplateManager(logger, loader, DefaultConfig(), dataDir)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func TestParse(t *testing.T) {
	tmpl, err := Parse("t", "a{{x}}b{{ raw y }}c{{fragment z}}")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", ""}, tmpl.segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	want := []slot{{slotValue, "x"}, {slotRaw, "y"}, {slotFragment, "z"}}
	if diff := cmp.Diff(want, tmpl.slots, cmp.AllowUnexported(slot{})); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"z"}, tmpl.Fragments()); diff != "" {
		t.Errorf("Fragments() mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"a{{x", "{{}}", "{{loop x}}", "{{a b c}}"} {
		if _, err := Parse("bad", bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t, nil)
	if diff := cmp.Diff([]string{"page.tmpl.html"}, tm.GetTemplateNames()); diff != "" {
		t.Errorf("template names mismatch (-want +got):\n%s", diff)
	}
	if name, ok := tm.ResolveName("page"); !ok || name != "page.tmpl.html" {
		t.Errorf("ResolveName(page) = %q, %v", name, ok)
	}
	if _, ok := tm.ResolveName("missing"); ok {
		t.Error("ResolveName should not match a missing template")
	}
}

func TestManager_Execute(t *testing.T) {
	tm := setupTestManager(t, mapLoader{"nav": markup.Raw("<nav></nav>")})
	data := map[string]any{
		"title": "Tom & Jerry",
		"body":  "<b>safe</b>",
		"items": []any{1, " < ", 2},
	}

	var buf bytes.Buffer
	if err := tm.Execute(context.Background(), &buf, "page.tmpl.html", data); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := "<title>Tom &amp; Jerry</title><nav></nav><main><b>safe</b></main><p>1 &lt; 2</p>"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	err := tm.Execute(context.Background(), &buf, "nonexistent.tmpl.html", nil)
	if err == nil || !strings.Contains(err.Error(), `"nonexistent.tmpl.html" is undefined`) {
		t.Errorf("expected an undefined template error, got %v", err)
	}
}

func TestManager_ExecuteErrors(t *testing.T) {
	ctx := context.Background()

	tm := setupTestManager(t, nil)
	var buf bytes.Buffer
	if err := tm.Execute(ctx, &buf, "page.tmpl.html", nil); !errors.Is(err, ErrNoFragments) {
		t.Errorf("expected ErrNoFragments, got %v", err)
	}

	tm = setupTestManager(t, mapLoader{})
	if err := tm.Execute(ctx, &buf, "page.tmpl.html", nil); err == nil {
		t.Error("expected a missing fragment to fail the render")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on failure, got %q", buf.String())
	}

	config := DefaultConfig()
	config.StrictData = true
	tm.SetConfig(config)
	err := tm.ExecuteTemplateString(ctx, &buf, "<p>{{name}}</p>", map[string]any{})
	if !errors.Is(err, ErrMissingData) {
		t.Errorf("expected ErrMissingData in strict mode, got %v", err)
	}
}

func TestManager_FragmentTimeout(t *testing.T) {
	never := markup.NewPromise()
	loader := loaderFunc(func(ctx context.Context, name string) *markup.Future { return never.Future() })
	tm := setupTestManager(t, loader)

	config := DefaultConfig()
	config.FragmentTimeoutMs = 10
	tm.SetConfig(config)

	var buf bytes.Buffer
	err := tm.ExecuteTemplateString(context.Background(), &buf, "{{fragment slow}}", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

type loaderFunc func(ctx context.Context, name string) *markup.Future

func (f loaderFunc) Load(ctx context.Context, name string) *markup.Future { return f(ctx, name) }

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t, nil)
	initialCount := len(tm.GetTemplateNames())

	writeTemplate(t, tm.GetTemplateDir(), "new.tmpl.html", `New Content`)
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(tm.GetTemplateNames()) != initialCount+1 {
		t.Errorf("expected %d templates after refresh, got %d", initialCount+1, len(tm.GetTemplateNames()))
	}

	writeTemplate(t, tm.GetTemplateDir(), "broken.tmpl.html", `{{oops`)
	if err := tm.Refresh(); err == nil {
		t.Fatal("expected Refresh to reject a broken template")
	}
	if len(tm.GetTemplateNames()) != initialCount+1 {
		t.Error("a failed Refresh should keep the previous template set")
	}
}

func TestManager_Stream(t *testing.T) {
	tm := setupTestManager(t, mapLoader{"nav": "<nav>"})
	var buf bytes.Buffer
	err := tm.Stream(context.Background(), &buf, "page.tmpl.html", map[string]any{"title": "t"})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if want := "<title>t</title>&lt;nav&gt;<main></main><p></p>"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestManager_WithFragmentStore(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "fragments.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = fragments.SetupSchema(db); err != nil {
		t.Fatalf("failed to set up fragments schema: %v", err)
	}
	store, err := fragments.NewStore(db)
	if err != nil {
		t.Fatalf("failed to create fragment store: %v", err)
	}
	t.Cleanup(store.Close)
	if err = store.Put(context.Background(), fragments.Fragment{Name: "nav", Body: "<nav>db</nav>", Trusted: true}); err != nil {
		t.Fatalf("failed to store fragment: %v", err)
	}

	tm := setupTestManager(t, store)
	var buf bytes.Buffer
	if err = tm.Execute(context.Background(), &buf, "page.tmpl.html", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(buf.String(), "<nav>db</nav>") {
		t.Errorf("stored fragment missing from output: %q", buf.String())
	}
}

// BenchmarkExecute measures a render that waits on one fragment.
func BenchmarkExecute(b *testing.B) {
	tm := setupTestManager(b, mapLoader{"nav": markup.Raw("<nav></nav>")})
	data := map[string]any{"title": "bench", "body": "<p>x</p>", "items": []int{1, 2, 3}}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tm.Execute(ctx, io.Discard, "page.tmpl.html", data)
	}
}
