package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stenotouch/internal/steno"
)

// Store is the SQLite stroke journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := ValidateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the connection for migration status queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

const insertStroke = `
	INSERT INTO strokes (timestamp_ns, steno, bits, key_count, layout, fingerprint, modality)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Insert journals one stroke and returns its ID.
func (s *Store) Insert(st *Stroke) (int64, error) {
	result, err := s.db.Exec(insertStroke, strokeArgs(st)...)
	if err != nil {
		return 0, fmt.Errorf("insert stroke: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	st.ID = id
	return id, nil
}

// InsertBatch journals strokes in one transaction.
func (s *Store) InsertBatch(strokes []Stroke) error {
	if len(strokes) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertStroke)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range strokes {
		if _, err := stmt.Exec(strokeArgs(&strokes[i])...); err != nil {
			return fmt.Errorf("insert stroke: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func strokeArgs(st *Stroke) []any {
	return []any{
		st.Time.UnixNano(), st.Stroke.String(), int64(st.Stroke), st.Stroke.Len(),
		st.Layout, st.Fingerprint, st.Modality,
	}
}

// RecordLayout remembers a layout version. Recording the same fingerprint
// again keeps the first sighting.
func (s *Store) RecordLayout(name, fingerprint, source string, seen time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO layouts (fingerprint, name, source, first_seen_ns)
		VALUES (?, ?, ?, ?)`,
		fingerprint, name, source, seen.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record layout: %w", err)
	}
	return nil
}

// GetLayout looks up a layout version by fingerprint. It returns nil when
// the fingerprint is unknown.
func (s *Store) GetLayout(fingerprint string) (*LayoutRecord, error) {
	var r LayoutRecord
	var seen int64
	err := s.db.QueryRow(`
		SELECT fingerprint, name, source, first_seen_ns FROM layouts WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&r.Fingerprint, &r.Name, &r.Source, &seen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get layout: %w", err)
	}
	r.FirstSeen = time.Unix(0, seen)
	return &r, nil
}

const selectStroke = `
	SELECT id, timestamp_ns, bits, layout, fingerprint, modality FROM strokes`

// Recent returns up to limit strokes, newest first.
func (s *Store) Recent(limit int) ([]Stroke, error) {
	rows, err := s.db.Query(selectStroke+` ORDER BY timestamp_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent strokes: %w", err)
	}
	defer rows.Close()
	return scanStrokes(rows)
}

// Range returns strokes with start <= time < end, oldest first.
func (s *Store) Range(start, end time.Time) ([]Stroke, error) {
	rows, err := s.db.Query(selectStroke+`
		WHERE timestamp_ns >= ? AND timestamp_ns < ?
		ORDER BY timestamp_ns, id`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query stroke range: %w", err)
	}
	defer rows.Close()
	return scanStrokes(rows)
}

func scanStrokes(rows *sql.Rows) ([]Stroke, error) {
	var out []Stroke
	for rows.Next() {
		var st Stroke
		var ts, bits int64
		if err := rows.Scan(&st.ID, &ts, &bits, &st.Layout, &st.Fingerprint, &st.Modality); err != nil {
			return nil, fmt.Errorf("scan stroke: %w", err)
		}
		st.Time = time.Unix(0, ts)
		st.Stroke = steno.Stroke(bits)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strokes: %w", err)
	}
	return out, nil
}

// KeyFrequency counts each primitive key over strokes journaled at or after
// since, in steno order. Keys never pressed are included with zero.
func (s *Store) KeyFrequency(since time.Time) ([]KeyCount, error) {
	cols := make([]string, steno.NumKeys)
	for k := range cols {
		cols[k] = fmt.Sprintf("COALESCE(SUM((bits >> %d) & 1), 0)", k)
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM strokes WHERE timestamp_ns >= ?"

	counts := make([]int64, steno.NumKeys)
	dest := make([]any, steno.NumKeys)
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := s.db.QueryRow(query, since.UnixNano()).Scan(dest...); err != nil {
		return nil, fmt.Errorf("key frequency: %w", err)
	}

	out := make([]KeyCount, steno.NumKeys)
	for i, n := range counts {
		out[i] = KeyCount{Key: steno.Key(i), Count: n}
	}
	return out, nil
}

// TopStrokes returns the most frequent strokes, most frequent first.
func (s *Store) TopStrokes(limit int) ([]StrokeCount, error) {
	rows, err := s.db.Query(`
		SELECT bits, COUNT(*) AS n FROM strokes
		GROUP BY bits ORDER BY n DESC, bits LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top strokes: %w", err)
	}
	defer rows.Close()

	var out []StrokeCount
	for rows.Next() {
		var bits, n int64
		if err := rows.Scan(&bits, &n); err != nil {
			return nil, fmt.Errorf("scan stroke count: %w", err)
		}
		out = append(out, StrokeCount{Stroke: steno.Stroke(bits), Count: n})
	}
	return out, rows.Err()
}

// Stats summarises the journal.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	var first, last sql.NullInt64
	err := s.db.QueryRow(`
		SELECT COUNT(*), MIN(timestamp_ns), MAX(timestamp_ns) FROM strokes`,
	).Scan(&st.Strokes, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("stroke stats: %w", err)
	}
	if first.Valid {
		st.First = time.Unix(0, first.Int64)
		st.Last = time.Unix(0, last.Int64)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM layouts`).Scan(&st.Layouts); err != nil {
		return nil, fmt.Errorf("layout stats: %w", err)
	}
	return &st, nil
}

// Prune deletes strokes older than before and returns how many went.
func (s *Store) Prune(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM strokes WHERE timestamp_ns < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune strokes: %w", err)
	}
	return result.RowsAffected()
}
