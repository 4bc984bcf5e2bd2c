package library

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// The expiry is cast so the driver hands back the stored text rather than a
// time.Time parsed from the DATE column type.
const memberColumns = `id,COALESCE(name,''),COALESCE(email,''),COALESCE(password,''),membership_type,CAST(membership_expiry AS TEXT)`

// AddMember registers a member together with its mirrored user account
// (username = email, role = user). Both rows are written in one transaction:
// if either insert fails nothing is stored.
func (d *Database) AddMember(in MemberInput) (int64, error) {
	hash, err := d.hashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	var id int64
	err = d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO members(name,email,password,membership_type,membership_expiry) VALUES(?,?,?,?,?)`,
			in.Name, in.Email, hash, nullableType(in.MembershipType), nullableString(in.MembershipExpiry))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("add member: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("add member: %w", err)
		}

		if _, err := tx.Exec(`INSERT INTO users(username,password,role) VALUES(?,?,?)`, in.Email, hash, string(RoleUser)); err != nil {
			if isUniqueViolation(err) {
				return ErrUsernameExists
			}
			return fmt.Errorf("add member user: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.log.Info("member added", zap.Int64("member_id", id), zap.String("email", in.Email))
	return id, nil
}

// GetMember fetches a single member.
func (d *Database) GetMember(id int64) (*Member, error) {
	m, err := scanMember(d.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers returns all members in insertion order.
func (d *Database) ListMembers() ([]*Member, error) {
	rows, err := d.db.Query(`SELECT ` + memberColumns + ` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMember overwrites the member's fields and keeps the mirrored user in
// step: a changed email renames the user, and the password is always
// resynced. An empty Password keeps the stored one.
func (d *Database) UpdateMember(id int64, in MemberInput) error {
	var newHash string
	if in.Password != "" {
		var err error
		if newHash, err = d.hashPassword(in.Password); err != nil {
			return err
		}
	}

	return d.withTx(func(tx *sql.Tx) error {
		var oldEmail, oldHash string
		err := tx.QueryRow(`SELECT COALESCE(email,''), COALESCE(password,'') FROM members WHERE id=?`, id).Scan(&oldEmail, &oldHash)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("update member: %w", err)
		}

		hash := newHash
		if hash == "" {
			hash = oldHash
		}

		_, err = tx.Exec(`UPDATE members SET name=?, email=?, password=?, membership_type=?, membership_expiry=? WHERE id=?`,
			in.Name, in.Email, hash, nullableType(in.MembershipType), nullableString(in.MembershipExpiry), id)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("update member: %w", err)
		}

		if err := syncMemberUser(tx, oldEmail, in.Email, hash); err != nil {
			return err
		}
		d.log.Info("member updated", zap.Int64("member_id", id), zap.String("email", in.Email))
		return nil
	})
}

// syncMemberUser points the mirrored user at newEmail with hash. Only role
// 'user' rows are touched; when no such row exists (stores written by older
// versions may lack one) it is created, and a clash with any other account
// is a conflict.
func syncMemberUser(tx *sql.Tx, oldEmail, newEmail, hash string) error {
	var (
		res sql.Result
		err error
	)
	if oldEmail != newEmail {
		res, err = tx.Exec(`UPDATE users SET username=?, password=? WHERE username=? AND role='user'`, newEmail, hash, oldEmail)
	} else {
		res, err = tx.Exec(`UPDATE users SET password=? WHERE username=? AND role='user'`, hash, newEmail)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("update member user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member user: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = tx.Exec(`INSERT INTO users(username,password,role) VALUES(?,?,?)`, newEmail, hash, string(RoleUser))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("update member user: %w", err)
	}
	return nil
}

// DeleteMember removes a member and its mirrored user unless that user still
// holds an unreturned book.
func (d *Database) DeleteMember(id int64) error {
	return d.withTx(func(tx *sql.Tx) error {
		var email string
		err := tx.QueryRow(`SELECT COALESCE(email,'') FROM members WHERE id=?`, id).Scan(&email)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}

		var active bool
		err = tx.QueryRow(`SELECT EXISTS(
            SELECT 1 FROM transactions t JOIN users u ON u.id = t.user_id
            WHERE u.username=? AND t.returned=0)`, email).Scan(&active)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if active {
			return ErrActiveIssues
		}

		if _, err := tx.Exec(`DELETE FROM users WHERE username=? AND role='user'`, email); err != nil {
			return fmt.Errorf("delete member user: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM members WHERE id=?`, id); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		d.log.Info("member deleted", zap.Int64("member_id", id), zap.String("email", email))
		return nil
	})
}

func scanMember(row scanner) (*Member, error) {
	var (
		m      Member
		mtype  sql.NullString
		expiry sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &mtype, &expiry); err != nil {
		return nil, err
	}
	if mtype.Valid {
		t := MembershipType(mtype.String)
		m.MembershipType = &t
	}
	if expiry.Valid {
		m.MembershipExpiry = &expiry.String
	}
	return &m, nil
}

func nullableType(t *MembershipType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
