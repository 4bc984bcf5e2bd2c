package main

import (
	"encoding/csv"
	"errors"
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
)

func main() {
	if err := newImportCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newImportCmd() *cobra.Command {
	var dbPath, cfgPath, file, username, password string

	cmd := &cobra.Command{
		Use:          "import_books",
		Short:        "Add books to the catalogue from a CSV file (title,author,genre,count)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(cfgPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}
			username, password, err = loginCredentials(username, password, cfg.Auth)
			if err != nil {
				return err
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

			session, err := manager.Login(username, password)
			if err != nil {
				return fmt.Errorf("login as %s: %w", username, err)
			}

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := importBooks(manager, session, f, log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", res.imported)
			fmt.Fprintf(out, "Errors: %d\n", len(res.failures))
			for _, rf := range res.failures {
				fmt.Fprintf(out, "  line %d: %v\n", rf.line, rf.err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "books.csv", "CSV file with title,author,genre,count rows")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite store (overrides config)")
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&username, "user", "", "admin username (defaults to the configured admin)")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

// loginCredentials picks the account the import runs as. Without --user it is
// the configured admin; --user needs its own --password.
func loginCredentials(username, password string, auth config.Auth) (string, string, error) {
	switch {
	case username == "" && password == "":
		return auth.AdminUsername, auth.AdminPassword, nil
	case username == "":
		return "", "", errors.New("--password given without --user")
	case password == "":
		return "", "", fmt.Errorf("--user %s given without --password", username)
	}
	return username, password, nil
}

type rowFailure struct {
	line int
	err  error
}

type importResult struct {
	imported int
	failures []rowFailure
}

// importBooks adds one book per CSV row. A first row whose count column is
// not a number is treated as a header. Bad rows are collected, not fatal.
func importBooks(mgr *library.LibraryManager, s *library.Session, r io.Reader, log *zap.Logger) (importResult, error) {
	var res importResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) < 4 {
			res.failures = append(res.failures, rowFailure{line, fmt.Errorf("want 4 columns, got %d", len(rec))})
			continue
		}

		count, err := strconv.Atoi(strings.TrimSpace(rec[3]))
		if err != nil {
			if line == 1 {
				continue
			}
			res.failures = append(res.failures, rowFailure{line, fmt.Errorf("count %q is not an integer", rec[3])})
			continue
		}

		id, err := mgr.AddBook(s, rec[0], rec[1], rec[2], count)
		if err != nil {
			if library.KindOf(err) == library.KindStorage {
				return res, err
			}
			res.failures = append(res.failures, rowFailure{line, err})
			continue
		}
		log.Debug("imported book", zap.Int64("book_id", id), zap.String("title", rec[0]))
		res.imported++
	}
	return res, nil
}
