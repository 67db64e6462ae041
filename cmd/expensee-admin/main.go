package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"expensee/internal/auth"
	"expensee/internal/cli"
	"expensee/internal/config"
	"expensee/internal/core"
	applog "expensee/internal/log"
	"expensee/internal/records"
	"expensee/internal/services"
	"expensee/internal/storage"
)

const usage = `Usage: expensee-admin <command> [flags]

Commands:
  add-account  create a login account
  export       write an account backup as JSON
  import       replace an account with a JSON backup
  summary      print income, expenses and loans of an account
  seed         install the global categories of a seed file

Run "expensee-admin <command> --help" for the flags of a command.
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command works against.
type env struct {
	cfg    *config.Config
	repo   *storage.SQLiteRepository
	ledger *services.LedgerService
	logger *applog.Logger
	stdin  io.Reader
	stdout io.Writer
}

type command func(ctx context.Context, e *env, fs *pflag.FlagSet, args []string) error

var commands = map[string]command{
	"add-account": addAccount,
	"export":      exportAccount,
	"import":      importAccount,
	"summary":     summary,
	"seed":        seed,
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stdout, usage)
		if len(args) == 0 {
			return errors.New("missing command")
		}
		return pflag.ErrHelp
	}
	name, rest := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg := config.Load()
	// Logs go to stderr, stdout carries exports.
	logger := applog.New(applog.Config{
		Level:     slog.LevelWarn,
		Component: applog.ComponentAdmin,
		Output:    stderr,
	})
	applog.SetDefault(logger)

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.SQLiteDBPath, "db", cfg.SQLiteDBPath, "path to the SQLite database")

	ctx := context.Background()
	e := &env{cfg: cfg, logger: logger, stdin: stdin, stdout: stdout}
	return cmd(ctx, e, fs, rest)
}

// open connects to the database named by --db. It must run after the
// command's flags were parsed.
func (e *env) open(ctx context.Context) (func(), error) {
	repo, err := storage.NewSQLiteRepository(e.cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defaults, err := cli.LoadSeed(ctx, e.logger, &config.Config{SeedFile: e.cfg.SeedFile}, repo)
	if err != nil {
		repo.Close()
		return nil, err
	}
	e.repo = repo
	e.ledger = services.NewLedgerService(repo, nil, defaults)
	return func() { repo.Close() }, nil
}

// accountFlag registers --account and resolves it to an account id.
func accountFlag(fs *pflag.FlagSet) func(ctx context.Context, e *env) (core.AccountID, error) {
	username := fs.StringP("account", "a", "", "username of the account")
	return func(ctx context.Context, e *env) (core.AccountID, error) {
		if strings.TrimSpace(*username) == "" {
			return "", errors.New("missing required flag: --account")
		}
		acct, err := e.repo.AccountByUsername(ctx, *username)
		if err != nil {
			if core.IsNotFound(err) {
				return "", fmt.Errorf("account %q does not exist", *username)
			}
			return "", err
		}
		return acct.ID, nil
	}
}

func addAccount(ctx context.Context, e *env, fs *pflag.FlagSet, args []string) error {
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "password (prompted when omitted)")
	admin := fs.Bool("admin", false, "grant the admin role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" || *name == "" {
		fmt.Fprintln(e.stdout, "Usage: expensee-admin add-account --username <u> --email <e> --name <n> [--password <p>] [--admin]")
		return errors.New("missing required flags: username, email, name")
	}

	pw := *password
	if pw == "" {
		fmt.Fprint(e.stdout, "Password: ")
		var err error
		if pw, err = readPassword(e.stdin); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		fmt.Fprintln(e.stdout)
	}

	closeDB, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	role := auth.RoleUser
	if *admin {
		role = auth.RoleAdmin
	}
	svc := auth.NewService(e.repo, e.cfg.SessionTTL, e.cfg.BcryptCost)
	acct, err := svc.Register(ctx, auth.RegisterRequest{
		Username: *username,
		Email:    *email,
		Name:     *name,
		Password: pw,
		Role:     role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Account %s created with ID %s (%s)\n", acct.Username, acct.ID, acct.Role)
	return nil
}

func exportAccount(ctx context.Context, e *env, fs *pflag.FlagSet, args []string) error {
	resolve := accountFlag(fs)
	out := fs.StringP("out", "o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	closeDB, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	acct, err := resolve(ctx, e)
	if err != nil {
		return err
	}

	snap, err := e.ledger.Export(ctx, acct)
	if err != nil {
		return err
	}
	w := e.stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func importAccount(ctx context.Context, e *env, fs *pflag.FlagSet, args []string) error {
	resolve := accountFlag(fs)
	in := fs.StringP("in", "i", "", "backup file to import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("missing required flag: --in")
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	var snap records.Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}

	closeDB, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	acct, err := resolve(ctx, e)
	if err != nil {
		return err
	}
	if err := e.ledger.Import(ctx, acct, snap); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Imported %d transactions, %d loans, %d categories, %d users and %d goals\n",
		len(snap.Transactions), len(snap.Loans), len(snap.Categories), len(snap.FinancialUsers), len(snap.Goals))
	return nil
}

func summary(ctx context.Context, e *env, fs *pflag.FlagSet, args []string) error {
	resolve := accountFlag(fs)
	year := fs.Int("year", 0, "restrict to a year")
	month := fs.Int("month", 0, "restrict to a month of --year (1-12)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var pred core.Predicate = core.All
	period := "all time"
	switch {
	case *month != 0 && (*year == 0 || *month < 1 || *month > 12):
		return errors.New("--month needs --year and must be between 1 and 12")
	case *month != 0:
		pred = core.InMonth(*year, time.Month(*month))
		period = fmt.Sprintf("%04d-%02d", *year, *month)
	case *year != 0:
		pred = core.Between(core.NewDate(*year, 1, 1), core.NewDate(*year, 12, 31))
		period = fmt.Sprint(*year)
	}

	closeDB, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	acct, err := resolve(ctx, e)
	if err != nil {
		return err
	}

	settings, err := e.ledger.Settings(ctx, acct)
	if err != nil {
		return err
	}
	sum, err := e.ledger.Summary(ctx, acct, pred)
	if err != nil {
		return err
	}
	loans, err := e.ledger.LoanSummary(ctx, acct)
	if err != nil {
		return err
	}

	cur := settings.Currency
	fmt.Fprintf(e.stdout, "Period:        %s\n", period)
	fmt.Fprintf(e.stdout, "Income:        %s\n", core.FormatAmount(sum.Income, cur))
	fmt.Fprintf(e.stdout, "Expenses:      %s\n", core.FormatAmount(sum.Expense, cur))
	fmt.Fprintf(e.stdout, "Net:           %s\n", core.FormatAmount(sum.Net, cur))
	fmt.Fprintf(e.stdout, "Savings rate:  %.1f%%\n", sum.SavingsRate*100)
	fmt.Fprintf(e.stdout, "Loans given:   %s\n", core.FormatAmount(loans.TotalGiven, cur))
	fmt.Fprintf(e.stdout, "Loans taken:   %s\n", core.FormatAmount(loans.TotalTaken, cur))
	fmt.Fprintf(e.stdout, "Pending loans: %d (repaid %d, orphaned %d)\n", loans.PendingCount, loans.RepaidCount, loans.OrphanedCount)
	return nil
}

func seed(ctx context.Context, e *env, fs *pflag.FlagSet, args []string) error {
	file := fs.StringP("file", "f", e.cfg.SeedFile, "seed YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("missing required flag: --file (or SEED_FILE)")
	}
	e.cfg.SeedFile = *file
	closeDB, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	cats, err := e.repo.ListCategories(ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Seed applied, %d global categories\n", len(cats))
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
