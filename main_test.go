package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"desk-library/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func runConsole(t *testing.T, mgr *library.LibraryManager, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, newConsole(mgr, in, &out, zap.NewNop()).run())
	return out.String()
}

func newTestManager(t *testing.T) *library.LibraryManager {
	t.Helper()
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "lib.db"), library.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestConsoleCirculation(t *testing.T) {
	mgr := newTestManager(t)

	out := runConsole(t, mgr,
		"admin", "wrong",
		"admin", "admin",
		"add book", "Dune", "Herbert", "Sci-Fi", "1",
		"issue", "a@b.com", "1", "",
		"add member", "A", "a@b.com", "pw", "student", "2030-01-01",
		"issue", "a@b.com", "1", "",
		"issue", "a@b.com", "1", "",
		"return", "1",
		"delete book", "x",
		"exit",
	)

	assert.Contains(t, out, "Login failed (unauthorized): invalid credentials")
	assert.Contains(t, out, "Added book ID 1")
	assert.Contains(t, out, "Error (not found): user not found")
	assert.Contains(t, out, "Member (and user) created")
	assert.Contains(t, out, "Book issued (transaction 1)")
	assert.Contains(t, out, "Error (rejected): no copies available")
	assert.Contains(t, out, "Book return processed")
	assert.Contains(t, out, "Invalid number: x")
	assert.Contains(t, out, "Goodbye!")

	admin, err := mgr.Login("admin", "admin")
	require.NoError(t, err)
	b, err := mgr.GetBook(admin, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCount)
}

func TestConsoleUserIsReadOnly(t *testing.T) {
	mgr := newTestManager(t)
	admin, err := mgr.Login("admin", "admin")
	require.NoError(t, err)
	_, err = mgr.AddMember(admin, library.MemberInput{Name: "A", Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)

	out := runConsole(t, mgr,
		"a@b.com", "pw",
		"add book", "Dune", "Herbert", "Sci-Fi", "1",
		"list books",
		"transactions",
		"logout",
	)

	assert.Contains(t, out, "read-only account")
	assert.Contains(t, out, "Error adding book (unauthorized): admin role required")
	assert.Contains(t, out, "No books found.")
	assert.Contains(t, out, "No transactions.")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
}
