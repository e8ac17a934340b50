package fragments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/CTAG07/markup/pkg/markup"
)

// ErrNotFound is returned when no fragment has the requested name.
var ErrNotFound = errors.New("fragments: not found")

// Fragment is a named piece of HTML.
type Fragment struct {
	Name      string    `yaml:"name"`
	Body      string    `yaml:"body"`
	Trusted   bool      `yaml:"trusted"`
	UpdatedAt time.Time `yaml:"-"`
}

// Value returns the fragment as an interpolation value: an escaped marker for
// trusted fragments and the raw body otherwise.
func (f Fragment) Value() any {
	if f.Trusted {
		return markup.Raw(f.Body)
	}
	return f.Body
}

// SetupSchema creates the fragments table. It is idempotent and safe to call
// on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaFragments = `
CREATE TABLE IF NOT EXISTS fragments (
    name TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    trusted INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaFragments); err != nil {
		return fmt.Errorf("could not create fragments schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes fragments through prepared statements.
// All methods are safe for concurrent use.
type Store struct {
	db         *sql.DB
	stmtGet    *sql.Stmt
	stmtPut    *sql.Stmt
	stmtDelete *sql.Stmt
	stmtList   *sql.Stmt
	logger     *slog.Logger
}

// NewStore prepares the statements used by the Store. SetupSchema must have
// been run on db first.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGet, err := db.Prepare(`SELECT body, trusted, updated_at FROM fragments WHERE name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPut, err := db.Prepare(`INSERT INTO fragments (name, body, trusted, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET body = excluded.body, trusted = excluded.trusted, updated_at = excluded.updated_at;`)
	if err != nil {
		return nil, err
	}

	stmtDelete, err := db.Prepare(`DELETE FROM fragments WHERE name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtList, err := db.Prepare(`SELECT name FROM fragments ORDER BY name;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		stmtGet:    stmtGet,
		stmtPut:    stmtPut,
		stmtDelete: stmtDelete,
		stmtList:   stmtList,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements. The database itself is left open.
func (s *Store) Close() {
	_ = s.stmtGet.Close()
	_ = s.stmtPut.Close()
	_ = s.stmtDelete.Close()
	_ = s.stmtList.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Put inserts or replaces a fragment. A zero UpdatedAt is set to now.
func (s *Store) Put(ctx context.Context, f Fragment) error {
	if f.Name == "" {
		return errors.New("fragments: empty name")
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	if _, err := s.stmtPut.ExecContext(ctx, f.Name, f.Body, f.Trusted, f.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to store fragment %q: %w", f.Name, err)
	}
	return nil
}

// Get returns the fragment with the given name, or an error wrapping
// ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (Fragment, error) {
	f := Fragment{Name: name}
	var updated int64
	err := s.stmtGet.QueryRowContext(ctx, name).Scan(&f.Body, &f.Trusted, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Fragment{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return Fragment{}, fmt.Errorf("failed to load fragment %q: %w", name, err)
	}
	f.UpdatedAt = time.Unix(updated, 0)
	return f, nil
}

// Delete removes a fragment. Deleting a missing fragment is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.stmtDelete.ExecContext(ctx, name); err != nil {
		return fmt.Errorf("failed to delete fragment %q: %w", name, err)
	}
	return nil
}

// List returns the names of all fragments in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// Load starts fetching a fragment and returns a Future that settles with its
// interpolation value (see Fragment.Value). A missing fragment rejects the
// future with ErrNotFound.
func (s *Store) Load(ctx context.Context, name string) *markup.Future {
	return markup.Go(func() (any, error) {
		f, err := s.Get(ctx, name)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to load fragment", slog.String("name", name), slog.Any("error", err))
			return nil, err
		}
		s.logger.DebugContext(ctx, "Loaded fragment", slog.String("name", name), slog.Bool("trusted", f.Trusted))
		return f.Value(), nil
	})
}
