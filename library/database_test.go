package library

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fixedNow = time.Date(2024, time.March, 10, 15, 4, 5, 0, time.UTC)

func testOptions() []Option {
	return []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithBcryptCost(bcrypt.MinCost),
	}
}

func tempDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), testOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *Database, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestNewDatabaseSeedsSingleAdmin(t *testing.T) {
	db := tempDB(t)

	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM users WHERE role='admin'`))

	u, err := db.Authenticate("admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	assert.NotEqual(t, "admin", u.PasswordHash)
}

func TestReopenKeepsSingleAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.db")

	for i := 0; i < 3; i++ {
		db, err := NewDatabase(path, testOptions()...)
		require.NoError(t, err)
		assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM users WHERE role='admin'`))
		require.NoError(t, db.Close())
	}
}

func TestDefaultAdminOverride(t *testing.T) {
	opts := append(testOptions(), WithDefaultAdmin("librarian", "s3cret"))
	db, err := NewDatabase(filepath.Join(t.TempDir(), "lib.db"), opts...)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Authenticate("admin", "admin")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := db.Authenticate("librarian", "s3cret")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
}

func TestSchemaVersionRecorded(t *testing.T) {
	db := tempDB(t)
	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
}

// legacySchema is the layout written by older versions: no
// books.available_count, no transactions.due_date, plaintext passwords.
var legacySchema = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT UNIQUE, password TEXT,
            role TEXT CHECK(role IN ('admin','user')) NOT NULL)`,
	`CREATE TABLE books (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT, author TEXT, genre TEXT)`,
	`CREATE TABLE members (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, email TEXT UNIQUE, password TEXT,
            membership_type TEXT, membership_expiry DATE)`,
	`CREATE TABLE transactions (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, book_id INTEGER,
            issue_date TEXT, return_date TEXT, returned INTEGER DEFAULT 0)`,
}

// legacyStore writes an old-layout store holding rows, then opens it.
func legacyStore(t *testing.T, rows ...string) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	for _, stmt := range append(legacySchema, rows...) {
		_, err := raw.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	db, err := NewDatabase(path, testOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigratesLegacyStore(t *testing.T) {
	db := legacyStore(t,
		`INSERT INTO users(username,password,role) VALUES('admin','admin','admin'), ('a@b.com','pw','user')`,
		`INSERT INTO members(name,email,password) VALUES('A','a@b.com','pw')`,
		`INSERT INTO books(title,author,genre) VALUES('Dune','Herbert','Sci-Fi')`,
	)

	books, err := db.ListBooks("")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, 0, books[0].AvailableCount)

	require.NoError(t, db.UpdateBook(Book{ID: books[0].ID, Title: "Dune", Author: "Herbert", Genre: "Sci-Fi", AvailableCount: 1}))
	_, err = db.IssueBook("a@b.com", books[0].ID, 7)
	require.NoError(t, err)

	txs, err := db.ListTransactions("")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-03-17", txs[0].DueDate)

	_, err = db.Authenticate("admin", "admin")
	assert.NoError(t, err)
	_, err = db.Authenticate("a@b.com", "pw")
	assert.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM users WHERE role='admin'`))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := tempDB(t)

	err := db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO books(title) VALUES('ghost')`)
		require.NoError(t, err)
		return ErrNoCopiesAvailable
	})
	assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	assert.Equal(t, 0, countRows(t, db, `SELECT COUNT(*) FROM books`))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := tempDB(t)

	assert.Panics(t, func() {
		_ = db.withTx(func(tx *sql.Tx) error {
			_, _ = tx.Exec(`INSERT INTO books(title) VALUES('ghost')`)
			panic("boom")
		})
	})
	assert.Equal(t, 0, countRows(t, db, `SELECT COUNT(*) FROM books`))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrEmailExists))
	assert.Equal(t, KindRejected, KindOf(ErrAlreadyReturned))
	assert.Equal(t, KindNotFound, KindOf(ErrBookNotFound))
	assert.Equal(t, KindInvalid, KindOf(invalid("title is required")))
	assert.Equal(t, KindUnauthorized, KindOf(ErrForbidden))
	assert.Equal(t, KindStorage, KindOf(sql.ErrConnDone))
}
