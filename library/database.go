package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultIssueDays is the loan length used when none is given.
	DefaultIssueDays = 14

	dateLayout = "2006-01-02"
)

// Database owns the SQLite connection, the schema and every business rule
// that keeps users, books, members and transactions consistent.
type Database struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time

	bcryptCost    int
	adminUsername string
	adminPassword string

	addBookStmt *sql.Stmt
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock replaces time.Now for issue, due and return dates.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithBcryptCost sets the cost used when hashing passwords.
func WithBcryptCost(cost int) Option {
	return func(d *Database) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			d.bcryptCost = cost
		}
	}
}

// WithDefaultAdmin sets the credentials seeded when no admin account exists.
func WithDefaultAdmin(username, password string) Option {
	return func(d *Database) {
		if username != "" && password != "" {
			d.adminUsername, d.adminPassword = username, password
		}
	}
}

// NewDatabase opens (or creates) the SQLite database at dbPath, creates and
// migrates the schema, seeds the admin account and prepares common statements.
func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	d := &Database{
		log:           zap.NewNop(),
		now:           time.Now,
		bcryptCost:    bcrypt.DefaultCost,
		adminUsername: "admin",
		adminPassword: "admin",
	}
	for _, opt := range opts {
		opt(d)
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Foreign keys stay declarative: closed loans keep pointing at deleted
	// books and members.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=0", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One local connection; writers are never concurrent.
	db.SetMaxOpenConns(1)
	d.db = db

	if err := d.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.ensureAdmin(); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	d.log.Info("library store ready", zap.String("path", dbPath))
	return d, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 3

var createStmts = []string{
	`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`,
	`CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE,
        password TEXT,
        role TEXT CHECK(role IN ('admin','user')) NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS books (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        title TEXT,
        author TEXT,
        genre TEXT,
        available_count INTEGER DEFAULT 0
    );`,
	`CREATE TABLE IF NOT EXISTS members (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT,
        email TEXT UNIQUE,
        password TEXT,
        membership_type TEXT CHECK(membership_type IN ('regular','premium','student')),
        membership_expiry DATE
    );`,
	`CREATE TABLE IF NOT EXISTS transactions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER REFERENCES users(id),
        book_id INTEGER REFERENCES books(id),
        issue_date TEXT,
        due_date TEXT,
        return_date TEXT,
        returned INTEGER DEFAULT 0
    );`,
}

// addedColumns lists columns that older stores were created without.
var addedColumns = []struct {
	table, column, ddl string
}{
	{"books", "available_count", "INTEGER DEFAULT 0"},
	{"transactions", "due_date", "TEXT"},
}

func (d *Database) applyMigrations() error {
	// WAL keeps readers off the writer's lock.
	if _, err := d.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return d.withTx(func(tx *sql.Tx) error {
		for _, stmt := range createStmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}

		for _, c := range addedColumns {
			ok, err := hasColumn(tx, c.table, c.column)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.ddl)); err != nil {
				return fmt.Errorf("add column %s.%s: %w", c.table, c.column, err)
			}
			d.log.Info("migrated column", zap.String("table", c.table), zap.String("column", c.column))
		}

		if err := d.hashLegacyPasswords(tx); err != nil {
			return err
		}

		_, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion)
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			found = true
		}
	}
	return found, rows.Err()
}

// hashLegacyPasswords replaces plaintext passwords left by older stores
// with bcrypt hashes so that Authenticate keeps working after an upgrade.
func (d *Database) hashLegacyPasswords(tx *sql.Tx) error {
	for _, table := range []string{"users", "members"} {
		rows, err := tx.Query(fmt.Sprintf("SELECT id, password FROM %s WHERE password IS NOT NULL", table))
		if err != nil {
			return fmt.Errorf("scan %s passwords: %w", table, err)
		}
		plain := map[int64]string{}
		for rows.Next() {
			var (
				id int64
				pw string
			)
			if err := rows.Scan(&id, &pw); err != nil {
				rows.Close()
				return err
			}
			if _, err := bcrypt.Cost([]byte(pw)); err != nil {
				plain[id] = pw
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for id, pw := range plain {
			hash, err := d.hashPassword(pw)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET password=? WHERE id=?", table), hash, id); err != nil {
				return fmt.Errorf("rehash %s password: %w", table, err)
			}
		}
		if len(plain) > 0 {
			d.log.Info("hashed legacy passwords", zap.String("table", table), zap.Int("count", len(plain)))
		}
	}
	return nil
}

// SchemaVersion returns the version recorded by the last migration.
func (d *Database) SchemaVersion() (int, error) {
	var v int
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return v, nil
}

func (d *Database) ensureAdmin() error {
	var exists bool
	if err := d.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE role='admin')`).Scan(&exists); err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := d.AddUser(d.adminUsername, d.adminPassword, RoleAdmin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	d.log.Info("seeded default admin account", zap.String("username", d.adminUsername))
	return nil
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Prepare(`INSERT INTO books(title,author,genre,available_count) VALUES(?,?,?,?)`); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// withTx runs fn in one SQL transaction. Any error or panic rolls back;
// otherwise the transaction is committed.
func (d *Database) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (d *Database) today() time.Time {
	t := d.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (d *Database) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
