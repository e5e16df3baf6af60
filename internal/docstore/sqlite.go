package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const createDocsTable = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// SQLite stores documents as JSON text and filters with json_extract.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the document database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite doc store requires a path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create docstore dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createDocsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate docstore: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Insert implements Inserter.
func (s *SQLite) Insert(ctx context.Context, collection string, docs ...Doc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO documents (collection, id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		data, err := json.Marshal(d.Data)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, d.ID, string(data)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", collection, d.ID, err)
		}
	}

	return tx.Commit()
}

// whereClause renders predicates as json_extract comparisons.
func whereClause(collection string, where []Predicate) (string, []any) {
	var sb strings.Builder
	args := []any{collection}

	sb.WriteString("collection = ?")
	for _, p := range where {
		sb.WriteString(" AND json_extract(data, ?) ")
		sb.WriteString(sqlOp(p.Op))
		sb.WriteString(" ?")
		args = append(args, "$."+p.Field, bindValue(p.Value))
	}
	return sb.String(), args
}

func sqlOp(op Op) string {
	if op == Eq {
		return "="
	}
	return string(op)
}

func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		if t {
			return 1
		}
		return 0
	}
	if f, ok := ToFloat(v); ok {
		return f
	}
	return v
}

// Find implements Store.
func (s *SQLite) Find(ctx context.Context, collection string, q Query) ([]Doc, error) {
	if err := validate(q); err != nil {
		return nil, err
	}

	where, args := whereClause(collection, q.Where)
	query := "SELECT id, data FROM documents WHERE " + where

	if q.OrderBy != "" {
		query += " ORDER BY json_extract(data, ?)"
		args = append(args, "$."+q.OrderBy)
		if q.Desc {
			query += " DESC"
		}
	} else {
		query += " ORDER BY rowid"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc := Doc{ID: id}
		if err := json.Unmarshal([]byte(data), &doc.Data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Count implements Counter.
func (s *SQLite) Count(ctx context.Context, collection string, where ...Predicate) (int, error) {
	if err := validate(Query{Where: where}); err != nil {
		return 0, err
	}

	clause, args := whereClause(collection, where)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+clause, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
