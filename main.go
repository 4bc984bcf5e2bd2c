package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"desk-library/config"
	"desk-library/library"
	"desk-library/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath, cfgPath string

	cmd := &cobra.Command{
		Use:          "desklibrary",
		Short:        "Single-desk library management console",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(cfgPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}

			log, err := logger.New(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer log.Sync()

			manager, err := library.NewLibraryManager(cfg.Database.Path,
				library.WithLogger(log),
				library.WithBcryptCost(cfg.Auth.BcryptCost),
				library.WithDefaultAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword),
			)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer manager.Close()
			manager.SetIssueDays(cfg.Circulation.DefaultIssueDays)

			c := newConsole(manager, os.Stdin, cmd.OutOrStdout(), log)
			return c.run()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite store (overrides config)")
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	return cmd
}

// console is the line-oriented front end. It holds no library state of its
// own: every command is one manager call followed by a re-query.
type console struct {
	mgr     *library.LibraryManager
	in      io.Reader
	sc      *bufio.Scanner
	out     io.Writer
	log     *zap.Logger
	session *library.Session
}

func newConsole(mgr *library.LibraryManager, in io.Reader, out io.Writer, log *zap.Logger) *console {
	return &console{mgr: mgr, in: in, sc: bufio.NewScanner(in), out: out, log: log}
}

func (c *console) printf(format string, args ...any) { fmt.Fprintf(c.out, format, args...) }

// prompt reads one trimmed line; ok is false on end of input.
func (c *console) prompt(label string) (string, bool) {
	c.printf("%s", label)
	if !c.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.sc.Text()), true
}

// readPassword reads a password with masking when attached to a terminal.
func (c *console) readPassword(label string) (string, bool) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.printf("%s", label)
		b, err := term.ReadPassword(int(f.Fd()))
		c.printf("\n")
		if err != nil {
			c.printf("Error reading password: %v\n", err)
			return "", false
		}
		return strings.TrimSpace(string(b)), true
	}
	return c.prompt(label)
}

func (c *console) promptInt(label string) (int64, bool) {
	s, ok := c.prompt(label)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		c.printf("Invalid number: %s\n", s)
		return 0, false
	}
	return n, true
}

func (c *console) login() bool {
	for {
		username, ok := c.prompt("Username: ")
		if !ok {
			return false
		}
		password, ok := c.readPassword("Password: ")
		if !ok {
			return false
		}
		s, err := c.mgr.Login(username, password)
		if err != nil {
			c.report("Login failed", err)
			continue
		}
		c.session = s
		c.log.Info("login", zap.String("username", s.Username()))
		c.printf("Welcome, %s (%s)\n", s.Username(), s.User.Role)
		return true
	}
}

func (c *console) run() error {
	c.printf("Library Management System\n")
	for {
		if c.session == nil && !c.login() {
			return nil
		}
		c.printHelp()

		for c.session != nil {
			cmd, ok := c.prompt("\n> ")
			if !ok {
				return nil
			}
			switch cmd {
			case "list books":
				c.listBooks("")
			case "search book":
				if q, ok := c.prompt("Search: "); ok {
					c.listBooks(q)
				}
			case "add book":
				c.handleAddBook()
			case "update book":
				c.handleUpdateBook()
			case "delete book":
				c.handleDeleteBook()
			case "list members":
				c.listMembers()
			case "add member":
				c.handleAddMember()
			case "update member":
				c.handleUpdateMember()
			case "delete member":
				c.handleDeleteMember()
			case "issue":
				c.handleIssue()
			case "return":
				c.handleReturn()
			case "transactions":
				c.listTransactions()
			case "help":
				c.printHelp()
			case "logout":
				c.session = nil
			case "exit":
				c.printf("Goodbye!\n")
				return nil
			case "":
			default:
				c.printf("Unknown command. Type 'help' for the list.\n")
			}
		}
	}
}

func (c *console) printHelp() {
	c.printf("Commands:\n")
	c.printf("  Books: list books, search book, add book, update book, delete book\n")
	c.printf("  Members: list members, add member, update member, delete member\n")
	c.printf("  Circulation: issue, return, transactions\n")
	c.printf("  Session: help, logout, exit\n")
	if !c.session.IsAdmin() {
		c.printf("  (read-only account: only listings are available)\n")
	}
}

// report prints a failure with its category so storage faults stand out
// from ordinary rejections.
func (c *console) report(action string, err error) {
	kind := library.KindOf(err)
	if kind == library.KindStorage {
		c.log.Error(action, zap.Error(err))
	}
	c.printf("%s (%s): %v\n", action, kind, err)
}

// ------------------ Books ------------------

func (c *console) listBooks(search string) {
	books, err := c.mgr.ListBooks(c.session, search)
	if err != nil {
		c.report("Error listing books", err)
		return
	}
	if len(books) == 0 {
		c.printf("No books found.\n")
		return
	}
	c.printf("%-5s %-30s %-25s %-15s %s\n", "ID", "Title", "Author", "Genre", "Available")
	c.printf("%s\n", strings.Repeat("-", 90))
	for _, b := range books {
		c.printf("%-5d %-30s %-25s %-15s %d\n", b.ID, truncateString(b.Title, 30), truncateString(b.Author, 25), truncateString(b.Genre, 15), b.AvailableCount)
	}
}

func (c *console) readBookFields(current *library.Book) (library.Book, bool) {
	var b library.Book
	if current != nil {
		b = *current
	}
	hint := func(s string) string {
		if current == nil {
			return ""
		}
		return fmt.Sprintf(" [%s]", s)
	}
	field := func(label, cur string) (string, bool) {
		v, ok := c.prompt(label + hint(cur) + ": ")
		if ok && v == "" && current != nil {
			v = cur
		}
		return v, ok
	}

	var ok bool
	if b.Title, ok = field("Title", b.Title); !ok {
		return b, false
	}
	if b.Author, ok = field("Author", b.Author); !ok {
		return b, false
	}
	if b.Genre, ok = field("Genre", b.Genre); !ok {
		return b, false
	}
	count, ok := field("Available count", strconv.Itoa(b.AvailableCount))
	if !ok {
		return b, false
	}
	if count == "" {
		count = "0"
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		c.printf("Available count must be an integer\n")
		return b, false
	}
	b.AvailableCount = n
	return b, true
}

func (c *console) handleAddBook() {
	b, ok := c.readBookFields(nil)
	if !ok {
		return
	}
	if b.Title == "" {
		c.printf("Title is required\n")
		return
	}
	id, err := c.mgr.AddBook(c.session, b.Title, b.Author, b.Genre, b.AvailableCount)
	if err != nil {
		c.report("Error adding book", err)
		return
	}
	c.printf("Added book ID %d\n", id)
	c.listBooks("")
}

func (c *console) handleUpdateBook() {
	id, ok := c.promptInt("Book ID: ")
	if !ok {
		return
	}
	current, err := c.mgr.GetBook(c.session, id)
	if err != nil {
		c.report("Error", err)
		return
	}
	b, ok := c.readBookFields(current)
	if !ok {
		return
	}
	if err := c.mgr.UpdateBook(c.session, b); err != nil {
		c.report("Error updating book", err)
		return
	}
	c.printf("Book updated\n")
	c.listBooks("")
}

func (c *console) handleDeleteBook() {
	id, ok := c.promptInt("Book ID: ")
	if !ok {
		return
	}
	if err := c.mgr.DeleteBook(c.session, id); err != nil {
		c.report("Cannot delete", err)
		return
	}
	c.printf("Book deleted\n")
	c.listBooks("")
}

// ------------------ Members ------------------

func (c *console) listMembers() {
	members, err := c.mgr.ListMembers(c.session)
	if err != nil {
		c.report("Error listing members", err)
		return
	}
	if len(members) == 0 {
		c.printf("No members registered.\n")
		return
	}
	c.printf("%-5s %-25s %-30s %-10s %s\n", "ID", "Name", "Email", "Type", "Expiry")
	c.printf("%s\n", strings.Repeat("-", 85))
	for _, m := range members {
		mtype, expiry := "", ""
		if m.MembershipType != nil {
			mtype = string(*m.MembershipType)
		}
		if m.MembershipExpiry != nil {
			expiry = *m.MembershipExpiry
		}
		c.printf("%-5d %-25s %-30s %-10s %s\n", m.ID, truncateString(m.Name, 25), truncateString(m.Email, 30), mtype, expiry)
	}
}

func (c *console) readMemberFields() (library.MemberInput, bool) {
	var in library.MemberInput
	var ok bool
	if in.Name, ok = c.prompt("Name: "); !ok {
		return in, false
	}
	if in.Email, ok = c.prompt("Email: "); !ok {
		return in, false
	}
	if in.Password, ok = c.readPassword("Password: "); !ok {
		return in, false
	}
	mtype, ok := c.prompt("Membership type (regular/premium/student, optional): ")
	if !ok {
		return in, false
	}
	if mtype != "" {
		t := library.MembershipType(mtype)
		in.MembershipType = &t
	}
	expiry, ok := c.prompt("Membership expiry (YYYY-MM-DD, optional): ")
	if !ok {
		return in, false
	}
	if expiry != "" {
		in.MembershipExpiry = &expiry
	}
	return in, true
}

func (c *console) handleAddMember() {
	in, ok := c.readMemberFields()
	if !ok {
		return
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		c.printf("Name, Email and Password required\n")
		return
	}
	if _, err := c.mgr.AddMember(c.session, in); err != nil {
		c.report("Error adding member", err)
		return
	}
	c.printf("Member (and user) created\n")
	c.listMembers()
}

func (c *console) handleUpdateMember() {
	id, ok := c.promptInt("Member ID: ")
	if !ok {
		return
	}
	c.printf("Leave the password empty to keep the current one.\n")
	in, ok := c.readMemberFields()
	if !ok {
		return
	}
	if in.Name == "" || in.Email == "" {
		c.printf("Name and Email required\n")
		return
	}
	if err := c.mgr.UpdateMember(c.session, id, in); err != nil {
		c.report("Error updating member", err)
		return
	}
	c.printf("Member updated\n")
	c.listMembers()
}

func (c *console) handleDeleteMember() {
	id, ok := c.promptInt("Member ID: ")
	if !ok {
		return
	}
	if err := c.mgr.DeleteMember(c.session, id); err != nil {
		c.report("Cannot delete", err)
		return
	}
	c.printf("Member deleted\n")
	c.listMembers()
}

// ------------------ Circulation ------------------

func (c *console) listTransactions() {
	txs, err := c.mgr.ListTransactions(c.session)
	if err != nil {
		c.report("Error listing transactions", err)
		return
	}
	if len(txs) == 0 {
		c.printf("No transactions.\n")
		return
	}
	c.printf("%-5s %-25s %-30s %-11s %-11s %-11s %s\n", "ID", "Username", "Book", "Issued", "Due", "Returned", "Done")
	c.printf("%s\n", strings.Repeat("-", 105))
	for _, t := range txs {
		returned := ""
		if t.ReturnDate != nil {
			returned = *t.ReturnDate
		}
		done := 0
		if t.Returned {
			done = 1
		}
		c.printf("%-5d %-25s %-30s %-11s %-11s %-11s %d\n", t.ID, truncateString(t.Username, 25), truncateString(t.BookTitle, 30), t.IssueDate, t.DueDate, returned, done)
	}
}

func (c *console) handleIssue() {
	username, ok := c.prompt("Member email (username): ")
	if !ok {
		return
	}
	bookID, ok := c.promptInt("Book ID: ")
	if !ok {
		return
	}
	days := 0
	if s, ok := c.prompt("Days (optional): "); !ok {
		return
	} else if s != "" {
		// A non-numeric entry falls back to the default loan length.
		if n, err := strconv.Atoi(s); err == nil {
			days = n
		}
	}
	id, err := c.mgr.IssueBook(c.session, username, bookID, days)
	if err != nil {
		c.report("Error", err)
		return
	}
	c.printf("Book issued (transaction %d)\n", id)
	c.listTransactions()
}

func (c *console) handleReturn() {
	id, ok := c.promptInt("Transaction ID: ")
	if !ok {
		return
	}
	if err := c.mgr.ReturnBook(c.session, id); err != nil {
		c.report("Error", err)
		return
	}
	c.printf("Book return processed\n")
	c.listTransactions()
}

func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength-3] + "..."
}
