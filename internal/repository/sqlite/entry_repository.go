package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"espresso-tracker/internal/domain"
	"espresso-tracker/internal/repository"
)

const (
	createEntriesTable = `
CREATE TABLE IF NOT EXISTS espresso_entry (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	coffee TEXT NOT NULL,
	grinder_setting TEXT NOT NULL,
	input_weight REAL NOT NULL,
	output_weight REAL NOT NULL,
	taste_comment TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
`

	createEntryIndexes = `
CREATE INDEX IF NOT EXISTS idx_espresso_entry_user_id ON espresso_entry(user_id);
CREATE INDEX IF NOT EXISTS idx_espresso_entry_coffee ON espresso_entry(coffee);
`

	entryColumns = `id, user_id, coffee, grinder_setting, input_weight, output_weight, taste_comment, created_at`
)

type EntryRepository struct {
	db *sql.DB
}

func NewEntryRepository(db *sql.DB) repository.EntryRepository {
	return &EntryRepository{db: db}
}

// Init creates the espresso_entry table and indexes, and upgrades a legacy
// pre-ownership table in place. Safe to run repeatedly.
func (r *EntryRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createEntriesTable); err != nil {
		return fmt.Errorf("create espresso_entry table: %w", err)
	}

	hasOwner, err := r.hasColumn(ctx, "espresso_entry", "user_id")
	if err != nil {
		return err
	}
	if !hasOwner {
		if err := r.migrateLegacyTable(ctx); err != nil {
			return fmt.Errorf("migrate legacy espresso_entry table: %w", err)
		}
	}

	if _, err := r.db.ExecContext(ctx, createEntryIndexes); err != nil {
		return fmt.Errorf("create espresso_entry indexes: %w", err)
	}
	return nil
}

func (r *EntryRepository) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, fmt.Errorf("describe %s table: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scan pragma table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate pragma table info: %w", err)
	}
	return false, nil
}

// migrateLegacyTable upgrades a pre-ownership espresso_entry table: every
// existing row becomes property of the sentinel anonymous user, then the
// table is rebuilt through a shadow copy because sqlite cannot add a NOT NULL
// constraint in place. The whole upgrade runs in one transaction so a crash
// mid-way leaves the legacy table untouched.
func (r *EntryRepository) migrateLegacyTable(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO users (id, email, password_hash, created_at)
VALUES (?, 'anonymous@local', '', ?)`,
		domain.AnonymousUserID,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("seed anonymous user: %w", err)
	}

	// the REFERENCES clause cannot ride along on ADD COLUMN with a non-NULL
	// default; the rebuilt table carries it instead
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`ALTER TABLE espresso_entry ADD COLUMN user_id INTEGER DEFAULT %d`, domain.AnonymousUserID),
	); err != nil {
		return fmt.Errorf("add user_id column: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE espresso_entry SET user_id = %d WHERE user_id IS NULL`, domain.AnonymousUserID),
	); err != nil {
		return fmt.Errorf("backfill user_id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE espresso_entry_new (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	coffee TEXT NOT NULL,
	grinder_setting TEXT NOT NULL,
	input_weight REAL NOT NULL,
	output_weight REAL NOT NULL,
	taste_comment TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
)`); err != nil {
		return fmt.Errorf("create shadow table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO espresso_entry_new (id, user_id, coffee, grinder_setting, input_weight, output_weight, taste_comment, created_at)
SELECT id, user_id, coffee, grinder_setting, input_weight, output_weight, COALESCE(taste_comment, ''), created_at
FROM espresso_entry`); err != nil {
		return fmt.Errorf("copy rows into shadow table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE espresso_entry`); err != nil {
		return fmt.Errorf("drop legacy table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE espresso_entry_new RENAME TO espresso_entry`); err != nil {
		return fmt.Errorf("rename shadow table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func (r *EntryRepository) Create(ctx context.Context, entry *domain.Entry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO espresso_entry (user_id, coffee, grinder_setting, input_weight, output_weight, taste_comment, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID,
		entry.Coffee,
		entry.GrinderSetting,
		entry.InputWeight,
		entry.OutputWeight,
		entry.TasteComment,
		entry.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entry last insert id: %w", err)
	}
	entry.ID = id
	return id, nil
}

func (r *EntryRepository) Get(ctx context.Context, id int64) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM espresso_entry
WHERE id = ?`,
		id,
	)
	return scanEntry(row)
}

// Update overwrites the mutable fields; owner and created_at stay as stored.
func (r *EntryRepository) Update(ctx context.Context, entry *domain.Entry) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE espresso_entry
SET coffee=?, grinder_setting=?, input_weight=?, output_weight=?, taste_comment=?
WHERE id=?`,
		entry.Coffee,
		entry.GrinderSetting,
		entry.InputWeight,
		entry.OutputWeight,
		entry.TasteComment,
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("entry update rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("entry %d not found", entry.ID)
	}
	return nil
}

func (r *EntryRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM espresso_entry WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("entry delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("entry %d not found", id)
	}
	return nil
}

func (r *EntryRepository) List(ctx context.Context) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM espresso_entry
ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *EntryRepository) ListByCoffee(ctx context.Context, coffee string) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM espresso_entry
WHERE coffee = ?
ORDER BY created_at DESC, id DESC`,
		coffee,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries by coffee: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Coffees projects the distinct coffee names, which doubles as the catalog
// used for filtering and autocomplete.
func (r *EntryRepository) Coffees(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT coffee FROM espresso_entry ORDER BY coffee`)
	if err != nil {
		return nil, fmt.Errorf("query coffees: %w", err)
	}
	defer rows.Close()

	var coffees []string
	for rows.Next() {
		var coffee string
		if err := rows.Scan(&coffee); err != nil {
			return nil, fmt.Errorf("scan coffee: %w", err)
		}
		coffees = append(coffees, coffee)
	}
	return coffees, rows.Err()
}

func collectEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface {
	Scan(dest ...any) error
}) (*domain.Entry, error) {
	var entry domain.Entry
	if err := scanner.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Coffee,
		&entry.GrinderSetting,
		&entry.InputWeight,
		&entry.OutputWeight,
		&entry.TasteComment,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return &entry, nil
}
