package library

import (
	"fmt"
	"strings"
	"time"
)

// Session is the authenticated account of one console sitting. It is handed
// to every LibraryManager call instead of living in a global.
type Session struct {
	User *User
}

// Username returns the logged-in username.
func (s *Session) Username() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Username
}

// IsAdmin reports whether the session may run mutating operations.
func (s *Session) IsAdmin() bool { return s != nil && s.User.IsAdmin() }

// LibraryManager is a thin façade over the Database that validates input and
// enforces the admin-only rule in one place.
type LibraryManager struct {
	db        *Database
	issueDays int
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath, opts...)
	if err != nil {
		return nil, err
	}
	return &LibraryManager{db: db, issueDays: DefaultIssueDays}, nil
}

// SetIssueDays changes the loan length used when IssueBook gets days == 0.
func (lm *LibraryManager) SetIssueDays(days int) {
	if days > 0 {
		lm.issueDays = days
	}
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Database exposes the underlying store.
func (lm *LibraryManager) Database() *Database { return lm.db }

// authorize is the single gate every mutating operation passes.
func authorize(s *Session) error {
	if s == nil || s.User == nil {
		return ErrUnauthenticated
	}
	if !s.User.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func authenticated(s *Session) error {
	if s == nil || s.User == nil {
		return ErrUnauthenticated
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}

// ------------------ Users ------------------

// Login checks credentials and starts a session.
func (lm *LibraryManager) Login(username, password string) (*Session, error) {
	u, err := lm.db.Authenticate(strings.TrimSpace(username), password)
	if err != nil {
		return nil, err
	}
	return &Session{User: u}, nil
}

func (lm *LibraryManager) AddUser(s *Session, username, password string, role Role) (int64, error) {
	if err := authorize(s); err != nil {
		return 0, err
	}
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return 0, invalid("username is required")
	case password == "":
		return 0, invalid("password is required")
	case !role.Valid():
		return 0, invalid("unknown role %q", role)
	}
	return lm.db.AddUser(username, password, role)
}

// ------------------ Books ------------------

func (lm *LibraryManager) AddBook(s *Session, title, author, genre string, availableCount int) (int64, error) {
	if err := authorize(s); err != nil {
		return 0, err
	}
	b := Book{Title: title, Author: author, Genre: genre, AvailableCount: availableCount}
	if err := validateBook(&b); err != nil {
		return 0, err
	}
	return lm.db.AddBook(b.Title, b.Author, b.Genre, b.AvailableCount)
}

func (lm *LibraryManager) UpdateBook(s *Session, b Book) error {
	if err := authorize(s); err != nil {
		return err
	}
	if err := validateBook(&b); err != nil {
		return err
	}
	return lm.db.UpdateBook(b)
}

func (lm *LibraryManager) DeleteBook(s *Session, id int64) error {
	if err := authorize(s); err != nil {
		return err
	}
	return lm.db.DeleteBook(id)
}

func (lm *LibraryManager) GetBook(s *Session, id int64) (*Book, error) {
	if err := authenticated(s); err != nil {
		return nil, err
	}
	return lm.db.GetBook(id)
}

func (lm *LibraryManager) ListBooks(s *Session, search string) ([]*Book, error) {
	if err := authenticated(s); err != nil {
		return nil, err
	}
	return lm.db.ListBooks(strings.TrimSpace(search))
}

func validateBook(b *Book) error {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.Genre = strings.TrimSpace(b.Genre)
	if b.Title == "" {
		return invalid("title is required")
	}
	if b.AvailableCount < 0 {
		return invalid("available count must not be negative")
	}
	return nil
}

// ------------------ Members ------------------

func (lm *LibraryManager) AddMember(s *Session, in MemberInput) (int64, error) {
	if err := authorize(s); err != nil {
		return 0, err
	}
	if err := validateMember(&in, true); err != nil {
		return 0, err
	}
	return lm.db.AddMember(in)
}

// UpdateMember leaves the password unchanged when in.Password is empty.
func (lm *LibraryManager) UpdateMember(s *Session, id int64, in MemberInput) error {
	if err := authorize(s); err != nil {
		return err
	}
	if err := validateMember(&in, false); err != nil {
		return err
	}
	return lm.db.UpdateMember(id, in)
}

func (lm *LibraryManager) DeleteMember(s *Session, id int64) error {
	if err := authorize(s); err != nil {
		return err
	}
	return lm.db.DeleteMember(id)
}

func (lm *LibraryManager) ListMembers(s *Session) ([]*Member, error) {
	if err := authorize(s); err != nil {
		return nil, err
	}
	return lm.db.ListMembers()
}

func (lm *LibraryManager) GetMember(s *Session, id int64) (*Member, error) {
	if err := authorize(s); err != nil {
		return nil, err
	}
	return lm.db.GetMember(id)
}

func validateMember(in *MemberInput, passwordRequired bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Name == "":
		return invalid("name is required")
	case in.Email == "":
		return invalid("email is required")
	case passwordRequired && in.Password == "":
		return invalid("password is required")
	}
	if in.MembershipType != nil {
		if *in.MembershipType == "" {
			in.MembershipType = nil
		} else if !in.MembershipType.Valid() {
			return invalid("unknown membership type %q", *in.MembershipType)
		}
	}
	if in.MembershipExpiry != nil {
		if *in.MembershipExpiry == "" {
			in.MembershipExpiry = nil
		} else if _, err := time.Parse(dateLayout, *in.MembershipExpiry); err != nil {
			return invalid("membership expiry must be YYYY-MM-DD")
		}
	}
	return nil
}

// ------------------ Circulation ------------------

// IssueBook lends bookID to username. days == 0 uses the configured loan
// length; a negative days is rejected.
func (lm *LibraryManager) IssueBook(s *Session, username string, bookID int64, days int) (int64, error) {
	if err := authorize(s); err != nil {
		return 0, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, invalid("username is required")
	}
	switch {
	case days < 0:
		return 0, invalid("loan length must not be negative")
	case days == 0:
		days = lm.issueDays
	}
	return lm.db.IssueBook(username, bookID, days)
}

func (lm *LibraryManager) ReturnBook(s *Session, txID int64) error {
	if err := authorize(s); err != nil {
		return err
	}
	return lm.db.ReturnBook(txID)
}

// ListTransactions shows admins every loan and other accounts their own.
func (lm *LibraryManager) ListTransactions(s *Session) ([]*TransactionView, error) {
	if err := authenticated(s); err != nil {
		return nil, err
	}
	if s.IsAdmin() {
		return lm.db.ListTransactions("")
	}
	return lm.db.ListTransactions(s.Username())
}
