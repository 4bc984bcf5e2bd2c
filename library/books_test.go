package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(books []*Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.Title)
	}
	return out
}

func TestAddAndGetBook(t *testing.T) {
	db := tempDB(t)

	id, err := db.AddBook("Dune", "Herbert", "Sci-Fi", 3)
	require.NoError(t, err)

	b, err := db.GetBook(id)
	require.NoError(t, err)
	assert.Equal(t, &Book{ID: id, Title: "Dune", Author: "Herbert", Genre: "Sci-Fi", AvailableCount: 3}, b)

	_, err = db.GetBook(id + 100)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestUpdateBook(t *testing.T) {
	db := tempDB(t)
	id, _ := db.AddBook("Dune", "Herbert", "Sci-Fi", 3)

	require.NoError(t, db.UpdateBook(Book{ID: id, Title: "Dune Messiah", Author: "Frank Herbert", Genre: "SF", AvailableCount: 5}))
	b, err := db.GetBook(id)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", b.Title)
	assert.Equal(t, "Frank Herbert", b.Author)
	assert.Equal(t, 5, b.AvailableCount)

	err = db.UpdateBook(Book{ID: 999, Title: "x"})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestListBooksSearch(t *testing.T) {
	db := tempDB(t)
	for _, b := range []Book{
		{Title: "Dune", Author: "Herbert", Genre: "Sci-Fi"},
		{Title: "Emma", Author: "Austen", Genre: "Romance"},
		{Title: "Neuromancer", Author: "Gibson", Genre: "Sci-Fi"},
		{Title: "Persuasion", Author: "Austen", Genre: "Classic"},
	} {
		_, err := db.AddBook(b.Title, b.Author, b.Genre, 1)
		require.NoError(t, err)
	}

	tests := []struct {
		search string
		want   []string
	}{
		{"", []string{"Dune", "Emma", "Neuromancer", "Persuasion"}},
		{"Sci", []string{"Dune", "Neuromancer"}},
		{"Austen", []string{"Emma", "Persuasion"}},
		{"mance", []string{"Emma", "Neuromancer"}},
		{"austen", []string{}},
		{"zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run("search="+tt.search, func(t *testing.T) {
			books, err := db.ListBooks(tt.search)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(books))
		})
	}
}

func TestDeleteBook(t *testing.T) {
	db := tempDB(t)
	id, _ := db.AddBook("Dune", "Herbert", "Sci-Fi", 1)

	require.NoError(t, db.DeleteBook(id))
	_, err := db.GetBook(id)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.ErrorIs(t, db.DeleteBook(id), ErrBookNotFound)
}

func TestDeleteBookWithActiveIssue(t *testing.T) {
	db := tempDB(t)
	id, _ := db.AddBook("Dune", "Herbert", "Sci-Fi", 2)
	_, err := db.AddMember(MemberInput{Name: "A", Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	txID, err := db.IssueBook("a@b.com", id, 0)
	require.NoError(t, err)

	err = db.DeleteBook(id)
	assert.ErrorIs(t, err, ErrActiveIssues)
	assert.Equal(t, "active issues", err.Error())

	b, err := db.GetBook(id)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCount)

	require.NoError(t, db.ReturnBook(txID))
	assert.NoError(t, db.DeleteBook(id))
}
