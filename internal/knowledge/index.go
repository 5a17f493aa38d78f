package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/bookctl/bookctl/internal/fault"
)

const createFactsSQL = `
CREATE TABLE IF NOT EXISTS facts (
    id            TEXT PRIMARY KEY,
    fact_key      TEXT NOT NULL,
    key_fold      TEXT NOT NULL UNIQUE,
    value         TEXT NOT NULL,
    source_issue  INTEGER DEFAULT 0,
    established   TEXT NOT NULL DEFAULT '',
    indexed_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_source_issue ON facts(source_issue);
`

// Fact is one indexed established fact.
type Fact struct {
	ID            string
	Key           string
	Value         string
	SourceIssue   int
	EstablishedAt string
	IndexedAt     time.Time
}

// Index mirrors the fact records of knowledge.jsonl into SQLite so they can
// be searched without rescanning the file. The JSONL file stays the source of
// truth; the index can be deleted and rebuilt with Sync at any time.
type Index struct {
	db      *sql.DB
	entropy *rand.Rand
}

// DefaultIndexPath returns ~/.local/share/bookctl/knowledge.db.
func DefaultIndexPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "bookctl", "knowledge.db"), nil
}

// OpenIndex opens (or creates) the index database at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(createFactsSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Index{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (x *Index) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), x.entropy).String()
}

// Sync upserts the fact records among records and returns how many rows were
// inserted or changed. Later records for the same key (case-insensitive) win.
func (x *Index) Sync(ctx context.Context, records []Record) (int, error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	changed := 0
	for _, rec := range records {
		if !rec.IsFact() || rec.Key == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO facts (id, fact_key, key_fold, value, source_issue, established, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key_fold) DO UPDATE SET
				fact_key = excluded.fact_key,
				value = excluded.value,
				source_issue = excluded.source_issue,
				established = excluded.established,
				indexed_at = excluded.indexed_at
			WHERE facts.value != excluded.value OR facts.source_issue != excluded.source_issue`,
			x.newID(), rec.Key, strings.ToLower(rec.Key), rec.Value,
			rec.SourceIssue, rec.EstablishedAt, now,
		)
		if err != nil {
			return 0, fmt.Errorf("index fact %q: %w", rec.Key, err)
		}
		n, _ := res.RowsAffected()
		changed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sync: %w", err)
	}
	return changed, nil
}

// likeEscaper makes LIKE wildcards in a query match themselves.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Search returns facts whose key or value contains query (case-insensitive),
// ordered by key.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, fact_key, value, source_issue, established, indexed_at
		FROM facts
		WHERE key_fold LIKE ? ESCAPE '\' OR lower(value) LIKE ? ESCAPE '\'
		ORDER BY key_fold
		LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	return scanFacts(rows)
}

// Get returns the fact stored under key.
func (x *Index) Get(ctx context.Context, key string) (*Fact, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, fact_key, value, source_issue, established, indexed_at
		FROM facts WHERE key_fold = ?`, strings.ToLower(key))
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	facts, err := scanFacts(rows)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, fault.NotFound("get fact", fmt.Errorf("fact %q: %w", key, sql.ErrNoRows))
	}
	return &facts[0], nil
}

// Count returns the number of indexed facts.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (x *Index) Close() error {
	return x.db.Close()
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	defer rows.Close()
	var out []Fact
	for rows.Next() {
		var f Fact
		var indexedAt string
		if err := rows.Scan(&f.ID, &f.Key, &f.Value, &f.SourceIssue, &f.EstablishedAt, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
