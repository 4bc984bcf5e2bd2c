package library

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// IssueBook lends one copy of bookID to username for days days (DefaultIssueDays
// when days <= 0). The loan row and the copy decrement are written together.
func (d *Database) IssueBook(username string, bookID int64, days int) (int64, error) {
	if days <= 0 {
		days = DefaultIssueDays
	}
	issued := d.today()
	due := issued.AddDate(0, 0, days)

	var txID int64
	err := d.withTx(func(tx *sql.Tx) error {
		user, err := getUserByUsername(tx.QueryRow, username)
		if err != nil {
			return err
		}

		var available int
		err = tx.QueryRow(`SELECT COALESCE(available_count,0) FROM books WHERE id=?`, bookID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookNotFound
		}
		if err != nil {
			return fmt.Errorf("issue book: %w", err)
		}
		if available <= 0 {
			return ErrNoCopiesAvailable
		}

		res, err := tx.Exec(`INSERT INTO transactions(user_id,book_id,issue_date,due_date,returned) VALUES(?,?,?,?,0)`,
			user.ID, bookID, issued.Format(dateLayout), due.Format(dateLayout))
		if err != nil {
			return fmt.Errorf("issue book: %w", err)
		}
		if txID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("issue book: %w", err)
		}
		if _, err := tx.Exec(`UPDATE books SET available_count=available_count-1 WHERE id=?`, bookID); err != nil {
			return fmt.Errorf("issue book: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.log.Info("book issued",
		zap.Int64("tx_id", txID),
		zap.Int64("book_id", bookID),
		zap.String("username", username),
		zap.String("due", due.Format(dateLayout)))
	return txID, nil
}

// ReturnBook closes an open loan and puts the copy back on the shelf.
func (d *Database) ReturnBook(txID int64) error {
	return d.withTx(func(tx *sql.Tx) error {
		var (
			bookID   int64
			returned bool
		)
		err := tx.QueryRow(`SELECT book_id, COALESCE(returned,0) FROM transactions WHERE id=?`, txID).Scan(&bookID, &returned)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("return book: %w", err)
		}
		if returned {
			return ErrAlreadyReturned
		}

		if _, err := tx.Exec(`UPDATE transactions SET return_date=?, returned=1 WHERE id=?`, d.today().Format(dateLayout), txID); err != nil {
			return fmt.Errorf("return book: %w", err)
		}
		if _, err := tx.Exec(`UPDATE books SET available_count=available_count+1 WHERE id=?`, bookID); err != nil {
			return fmt.Errorf("return book: %w", err)
		}
		d.log.Info("book returned", zap.Int64("tx_id", txID), zap.Int64("book_id", bookID))
		return nil
	})
}

// GetTransaction fetches a single loan.
func (d *Database) GetTransaction(txID int64) (*TransactionView, error) {
	t, err := scanTransaction(d.db.QueryRow(transactionQuery+` WHERE t.id=?`, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

const transactionQuery = `SELECT t.id, t.user_id, t.book_id, COALESCE(t.issue_date,''), COALESCE(t.due_date,''),
    t.return_date, COALESCE(t.returned,0), u.username, COALESCE(b.title,'')
    FROM transactions t
    JOIN users u ON t.user_id = u.id
    JOIN books b ON t.book_id = b.id`

// ListTransactions returns loans joined with username and book title, newest
// issue date first. A non-empty forUsername keeps only that user's loans.
func (d *Database) ListTransactions(forUsername string) ([]*TransactionView, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if forUsername == "" {
		rows, err = d.db.Query(transactionQuery + ` ORDER BY t.issue_date DESC, t.id DESC`)
	} else {
		rows, err = d.db.Query(transactionQuery+` WHERE u.username=? ORDER BY t.issue_date DESC, t.id DESC`, forUsername)
	}
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	views := []*TransactionView{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		views = append(views, t)
	}
	return views, rows.Err()
}

func scanTransaction(row scanner) (*TransactionView, error) {
	var (
		t          TransactionView
		returnDate sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.BookID, &t.IssueDate, &t.DueDate,
		&returnDate, &t.Returned, &t.Username, &t.BookTitle)
	if err != nil {
		return nil, err
	}
	if returnDate.Valid {
		t.ReturnDate = &returnDate.String
	}
	return &t, nil
}
