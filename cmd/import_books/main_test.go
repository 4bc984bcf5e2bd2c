package main

import (
	"path/filepath"
	"strings"
	"testing"

	"desk-library/config"
	"desk-library/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestImportBooks(t *testing.T) {
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "lib.db"), library.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	defer mgr.Close()
	s, err := mgr.Login("admin", "admin")
	require.NoError(t, err)

	csv := strings.Join([]string{
		"title,author,genre,count",
		"Dune,Frank Herbert,Sci-Fi,3",
		`"Emma, Revised",Jane Austen,Romance,1`,
		"Broken,Nobody,None,many",
		",No Title,None,2",
		"Short,Row",
	}, "\n")

	res, err := importBooks(mgr, s, strings.NewReader(csv), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, res.imported)
	require.Len(t, res.failures, 3)
	assert.Equal(t, 4, res.failures[0].line)
	assert.Equal(t, 5, res.failures[1].line)
	assert.ErrorIs(t, res.failures[1].err, library.ErrInvalidInput)
	assert.Equal(t, 6, res.failures[2].line)

	books, err := mgr.ListBooks(s, "")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Emma, Revised", books[1].Title)
	assert.Equal(t, 3, books[0].AvailableCount)
}

func TestImportBooksRequiresAdmin(t *testing.T) {
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "lib.db"), library.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	defer mgr.Close()

	res, err := importBooks(mgr, nil, strings.NewReader("Dune,Herbert,Sci-Fi,1\n"), zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, res.imported)
	require.Len(t, res.failures, 1)
	assert.ErrorIs(t, res.failures[0].err, library.ErrUnauthenticated)
}

func TestLoginCredentials(t *testing.T) {
	auth := config.Auth{AdminUsername: "librarian", AdminPassword: "s3cret"}

	tests := []struct {
		name, user, password string
		wantUser, wantPass   string
		wantErr              bool
	}{
		{name: "configured admin", wantUser: "librarian", wantPass: "s3cret"},
		{name: "explicit account", user: "bob", password: "pw", wantUser: "bob", wantPass: "pw"},
		{name: "user without password", user: "bob", wantErr: true},
		{name: "password without user", password: "pw", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, p, err := loginCredentials(tt.user, tt.password, auth)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, u)
			assert.Equal(t, tt.wantPass, p)
		})
	}
}
