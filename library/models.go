package library

// Role is the access level of a User account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// MembershipType is the optional plan a member is registered under.
type MembershipType string

const (
	MembershipRegular MembershipType = "regular"
	MembershipPremium MembershipType = "premium"
	MembershipStudent MembershipType = "student"
)

// Valid reports whether t is one of the known membership plans.
func (t MembershipType) Valid() bool {
	switch t {
	case MembershipRegular, MembershipPremium, MembershipStudent:
		return true
	}
	return false
}

// User is a login account. Every member has one mirrored user whose
// username is the member's email.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

// IsAdmin reports whether the account may run mutating operations.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Book is a catalogue entry. AvailableCount tracks copies currently loanable.
type Book struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	Genre          string `json:"genre"`
	AvailableCount int    `json:"available_count"`
}

// Member is a registered library member.
type Member struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	PasswordHash     string          `json:"-"`
	MembershipType   *MembershipType `json:"membership_type,omitempty"`
	MembershipExpiry *string         `json:"membership_expiry,omitempty"` // YYYY-MM-DD
}

// MemberInput carries the editable fields of a member. Password is plaintext
// and is hashed before it reaches the store.
type MemberInput struct {
	Name             string
	Email            string
	Password         string
	MembershipType   *MembershipType
	MembershipExpiry *string
}

// Transaction is one loan event. Transactions are never deleted.
type Transaction struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	BookID     int64   `json:"book_id"`
	IssueDate  string  `json:"issue_date"`
	DueDate    string  `json:"due_date"`
	ReturnDate *string `json:"return_date,omitempty"`
	Returned   bool    `json:"returned"`
}

// TransactionView is a Transaction joined with its username and book title.
type TransactionView struct {
	Transaction
	Username  string `json:"username"`
	BookTitle string `json:"book_title"`
}
