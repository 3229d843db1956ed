package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"expenses/internal/auth"
	"expenses/internal/backend"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/services"
)

func main() {
	cli.LoadEnvFile()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// noTokens satisfies services.TokenIssuer; an operator created account
// does not need a session.
type noTokens struct{}

func (noTokens) Issue(string) (string, error) { return "", nil }

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := config.Load()

	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Email address of the new user")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	name := fs.String("name", "", "Display name (optional)")
	sqlBackends := strings.Join(backend.SQLBackendNames(), ", ")
	backendName := fs.String("backend", cfg.DataBackend, "Data backend, one of: "+sqlBackends)
	dsn := fs.String("db", "", "SQLite path or database URL (defaults to SQLITE_DB_PATH / DATABASE_URL)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprintln(stdout, "Usage: adduser -email <email> [-password <password>] [-name <name>] [-backend <backend>] [-db <dsn>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}

	cfg.DataBackend = strings.ToLower(*backendName)
	backendType := backend.BackendType(cfg.DataBackend)
	if !backendType.IsSQL() {
		return fmt.Errorf("unsupported backend %q: must be one of %s", *backendName, sqlBackends)
	}
	if *dsn != "" {
		cfg.SQLiteDBPath = *dsn
		cfg.DatabaseURL = *dsn
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // Print newline after password input
	}

	ctx := context.Background()
	res, err := backend.NewFactory(log.New(log.Config{Output: stderr, Level: log.ParseLevel("warn")})).
		CreateBackend(ctx, backend.Config{Type: backendType, DSN: cfg.DSN()})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer res.Cleanup()

	users, err := services.NewUserService(res.Store, auth.DefaultHasher, noTokens{})
	if err != nil {
		return err
	}

	reg := services.Registration{Email: *email, Password: password}
	if *name != "" {
		reg.Name = name
	}
	session, err := users.Register(ctx, reg)
	if err != nil {
		var ve *core.ValidationError
		switch {
		case errors.Is(err, core.ErrConflict):
			return fmt.Errorf("user %s already exists", *email)
		case errors.As(err, &ve):
			return fmt.Errorf("invalid input: %s", strings.TrimPrefix(ve.Error(), "validation failed: "))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", session.User.Email, session.User.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
