package library

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AddUser creates a login account with a bcrypt-hashed password.
func (d *Database) AddUser(username, password string, role Role) (int64, error) {
	hash, err := d.hashPassword(password)
	if err != nil {
		return 0, err
	}
	res, err := d.db.Exec(`INSERT INTO users(username,password,role) VALUES(?,?,?)`, username, hash, string(role))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameExists
		}
		return 0, fmt.Errorf("add user: %w", err)
	}
	d.log.Debug("user added", zap.String("username", username), zap.String("role", string(role)))
	return res.LastInsertId()
}

// Authenticate returns the account whose username matches exactly and whose
// password hash matches password.
func (d *Database) Authenticate(username, password string) (*User, error) {
	u, err := d.GetUserByUsername(username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrHashTooShort):
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("authenticate: %w", err)
	}
}

// GetUserByUsername fetches a single account.
func (d *Database) GetUserByUsername(username string) (*User, error) {
	return getUserByUsername(d.db.QueryRow, username)
}

func getUserByUsername(queryRow func(string, ...any) *sql.Row, username string) (*User, error) {
	u, err := scanUser(queryRow(`SELECT id,username,COALESCE(password,''),role FROM users WHERE username=?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row scanner) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}
