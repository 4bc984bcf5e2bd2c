package library

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const bookColumns = `id,COALESCE(title,''),COALESCE(author,''),COALESCE(genre,''),COALESCE(available_count,0)`

// AddBook inserts a catalogue entry and returns its id.
func (d *Database) AddBook(title, author, genre string, availableCount int) (int64, error) {
	res, err := d.addBookStmt.Exec(title, author, genre, availableCount)
	if err != nil {
		return 0, fmt.Errorf("add book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add book: %w", err)
	}
	d.log.Debug("book added", zap.Int64("book_id", id), zap.String("title", title))
	return id, nil
}

// GetBook fetches a single book.
func (d *Database) GetBook(id int64) (*Book, error) {
	b, err := scanBook(d.db.QueryRow(`SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// UpdateBook overwrites title, author, genre and available count of b.ID.
func (d *Database) UpdateBook(b Book) error {
	res, err := d.db.Exec(`UPDATE books SET title=?, author=?, genre=?, available_count=? WHERE id=?`,
		b.Title, b.Author, b.Genre, b.AvailableCount, b.ID)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update book: %w", err)
	} else if n == 0 {
		return ErrBookNotFound
	}
	d.log.Debug("book updated", zap.Int64("book_id", b.ID))
	return nil
}

// DeleteBook removes a book unless a loan of it is still outstanding.
func (d *Database) DeleteBook(id int64) error {
	return d.withTx(func(tx *sql.Tx) error {
		var active bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM transactions WHERE book_id=? AND returned=0)`, id).Scan(&active); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		if active {
			return ErrActiveIssues
		}

		res, err := tx.Exec(`DELETE FROM books WHERE id=?`, id)
		if err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("delete book: %w", err)
		} else if n == 0 {
			return ErrBookNotFound
		}
		d.log.Info("book deleted", zap.Int64("book_id", id))
		return nil
	})
}

// ListBooks returns every book in insertion order. A non-empty search keeps
// only books whose title, author or genre contains it (case-sensitive).
func (d *Database) ListBooks(search string) ([]*Book, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if search == "" {
		rows, err = d.db.Query(`SELECT ` + bookColumns + ` FROM books ORDER BY id`)
	} else {
		rows, err = d.db.Query(`SELECT `+bookColumns+` FROM books
            WHERE instr(title, ?) > 0 OR instr(author, ?) > 0 OR instr(genre, ?) > 0
            ORDER BY id`, search, search, search)
	}
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func scanBook(row scanner) (*Book, error) {
	var b Book
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.AvailableCount); err != nil {
		return nil, err
	}
	return &b, nil
}
