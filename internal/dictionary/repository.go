package dictionary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hanjadb/hanjadb/internal/database"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// UpsertMode selects what happens when a key is already stored.
type UpsertMode string

const (
	UpsertOverwrite      UpsertMode = "overwrite"
	UpsertInsertIfAbsent UpsertMode = "insert_if_absent"
)

// Entry is the row shape of the hanja table.
type Entry struct {
	Traditional          string    `db:"traditional"`
	Simplified           string    `db:"simplified"`
	KoreanPronunciation  string    `db:"korean_pronunciation"`
	ForeignPronunciation string    `db:"foreign_pronunciation"`
	Radical              string    `db:"radical"`
	StrokeCount          int       `db:"stroke_count"`
	Meaning              string    `db:"meaning"`
	Examples             string    `db:"examples"`
	Sources              string    `db:"sources"`
	Frequency            int       `db:"frequency"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// NewEntry converts a record into its row shape.
func NewEntry(r Record) Entry {
	return Entry{
		Traditional:          r.Traditional,
		Simplified:           r.Simplified,
		KoreanPronunciation:  r.KoreanPronunciation,
		ForeignPronunciation: r.ForeignPronunciation,
		Radical:              r.Radical,
		StrokeCount:          r.StrokeCount,
		Meaning:              r.Meaning,
		Examples:             strings.Join(r.Examples, "\n"),
		Sources:              strings.Join(r.Sources, ","),
	}
}

// Record converts the row back into a record.
func (e Entry) Record() Record {
	return Record{
		Traditional:          e.Traditional,
		Simplified:           e.Simplified,
		KoreanPronunciation:  e.KoreanPronunciation,
		ForeignPronunciation: e.ForeignPronunciation,
		Radical:              e.Radical,
		StrokeCount:          e.StrokeCount,
		Meaning:              e.Meaning,
		Examples:             splitNonEmpty(e.Examples, "\n"),
		Sources:              splitNonEmpty(e.Sources, ","),
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

//go:generate mockgen -source=repository.go -destination=../mocks/dictionary/mock_repository.go -package=mock_dictionary

// Repository defines operations on stored hanja records.
type Repository interface {
	FindByKey(ctx context.Context, key LookupKey) (Record, error)
	FindAll(ctx context.Context) ([]Record, error)
	Search(ctx context.Context, term string, limit int) ([]Record, error)
	Upsert(ctx context.Context, record Record, mode UpsertMode) error
	BatchUpsert(ctx context.Context, records []Record, mode UpsertMode) error
}

const entryColumns = "traditional, simplified, korean_pronunciation, foreign_pronunciation, radical, stroke_count, meaning, examples, sources, frequency, created_at, updated_at"

var mergeColumns = []string{
	"simplified",
	"korean_pronunciation",
	"foreign_pronunciation",
	"radical",
	"stroke_count",
	"meaning",
	"examples",
	"sources",
}

// DBRepository implements Repository on MySQL, PostgreSQL or SQLite.
type DBRepository struct {
	db      *sqlx.DB
	dialect database.Dialect
}

// NewDBRepository creates a new DBRepository. The dialect is taken from the
// driver the connection was opened with.
func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{
		db:      db,
		dialect: database.DialectOf(db.DriverName()),
	}
}

// FindByKey returns the stored record for key, or ErrNotFound.
func (r *DBRepository) FindByKey(ctx context.Context, key LookupKey) (Record, error) {
	var entry Entry
	err := r.db.GetContext(ctx, &entry,
		r.db.Rebind("SELECT "+entryColumns+" FROM hanja WHERE traditional = ?"), string(key))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("find hanja %q: %w", key, err)
	}
	return entry.Record(), nil
}

// FindAll returns every stored record ordered by key.
func (r *DBRepository) FindAll(ctx context.Context) ([]Record, error) {
	var entries []Entry
	if err := r.db.SelectContext(ctx, &entries, "SELECT "+entryColumns+" FROM hanja ORDER BY traditional"); err != nil {
		return nil, fmt.Errorf("load all hanja: %w", err)
	}
	return toRecords(entries), nil
}

// likeEscaper makes LIKE wildcards in a search term match literally, with
// '!' as the escape character on every dialect.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search matches term as a case-insensitive substring of the key, the
// simplified form, both pronunciations and the meaning. Results are ordered
// by frequency, most used first.
func (r *DBRepository) Search(ctx context.Context, term string, limit int) ([]Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	query := r.db.Rebind(`SELECT ` + entryColumns + ` FROM hanja
		WHERE LOWER(traditional) LIKE ? ESCAPE '!'
			OR LOWER(simplified) LIKE ? ESCAPE '!'
			OR LOWER(korean_pronunciation) LIKE ? ESCAPE '!'
			OR LOWER(foreign_pronunciation) LIKE ? ESCAPE '!'
			OR LOWER(meaning) LIKE ? ESCAPE '!'
		ORDER BY frequency DESC, traditional
		LIMIT ?`)

	var entries []Entry
	if err := r.db.SelectContext(ctx, &entries, query, pattern, pattern, pattern, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("search hanja %q: %w", term, err)
	}
	return toRecords(entries), nil
}

// Upsert writes a single record.
func (r *DBRepository) Upsert(ctx context.Context, record Record, mode UpsertMode) error {
	if _, err := r.db.NamedExecContext(ctx, r.upsertQuery(mode), NewEntry(record)); err != nil {
		return fmt.Errorf("upsert hanja %q: %w", record.Traditional, err)
	}
	return nil
}

// BatchUpsert writes all records in one transaction.
func (r *DBRepository) BatchUpsert(ctx context.Context, records []Record, mode UpsertMode) error {
	if len(records) == 0 {
		return nil
	}
	query := r.upsertQuery(mode)
	return database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, record := range records {
			if _, err := tx.NamedExecContext(ctx, query, NewEntry(record)); err != nil {
				return fmt.Errorf("upsert hanja %q: %w", record.Traditional, err)
			}
		}
		return nil
	})
}

func (r *DBRepository) upsertQuery(mode UpsertMode) string {
	const insertColumns = "traditional, simplified, korean_pronunciation, foreign_pronunciation, radical, stroke_count, meaning, examples, sources"
	const insertValues = ":traditional, :simplified, :korean_pronunciation, :foreign_pronunciation, :radical, :stroke_count, :meaning, :examples, :sources"

	if r.dialect == database.DialectMySQL {
		if mode == UpsertInsertIfAbsent {
			return "INSERT IGNORE INTO hanja (" + insertColumns + ") VALUES (" + insertValues + ")"
		}
		sets := make([]string, 0, len(mergeColumns)+1)
		for _, c := range mergeColumns {
			sets = append(sets, c+" = VALUES("+c+")")
		}
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		return "INSERT INTO hanja (" + insertColumns + ") VALUES (" + insertValues + ") ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}

	if mode == UpsertInsertIfAbsent {
		return "INSERT INTO hanja (" + insertColumns + ") VALUES (" + insertValues + ") ON CONFLICT (traditional) DO NOTHING"
	}
	sets := make([]string, 0, len(mergeColumns)+1)
	for _, c := range mergeColumns {
		sets = append(sets, c+" = excluded."+c)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	return "INSERT INTO hanja (" + insertColumns + ") VALUES (" + insertValues + ") ON CONFLICT (traditional) DO UPDATE SET " + strings.Join(sets, ", ")
}

func toRecords(entries []Entry) []Record {
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.Record())
	}
	return records
}
