package fragments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// document is the YAML layout accepted by Import:
//
//	fragments:
//	  - name: nav
//	    trusted: true
//	    body: <nav>...</nav>
type document struct {
	Fragments []Fragment `yaml:"fragments"`
}

// Import reads fragments from a YAML document and stores them in a single
// transaction, returning how many were written. Either all fragments are
// stored or none are.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to parse fragments document: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	put := tx.StmtContext(ctx, s.stmtPut)
	now := time.Now().Unix()
	for i, f := range doc.Fragments {
		if f.Name == "" {
			return 0, fmt.Errorf("fragment %d has no name", i)
		}
		if _, err = put.ExecContext(ctx, f.Name, f.Body, f.Trusted, now); err != nil {
			return 0, fmt.Errorf("failed to import fragment %q: %w", f.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Imported fragments", "count", len(doc.Fragments))
	return len(doc.Fragments), nil
}
