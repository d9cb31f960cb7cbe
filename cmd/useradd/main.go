// Command useradd manages accounts in the configured credential store.
//
//	useradd alice            create alice, prompting for a password
//	useradd -reset alice     replace alice's password
//	useradd -remove alice    delete alice
//	useradd -list            print every username
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/term"

	"ground-truth-bench/internal/app"
	"ground-truth-bench/internal/config"
	"ground-truth-bench/internal/service"
)

// readPassword is swapped out in tests.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

var errUsage = errors.New("usage: useradd [-reset|-remove] <username> | useradd -list")

type options struct {
	username string
	reset    bool
	remove   bool
	list     bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.reset, "reset", false, "replace the password of an existing user")
	fs.BoolVar(&opts.remove, "remove", false, "delete the user")
	fs.BoolVar(&opts.list, "list", false, "list usernames")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.list {
		if fs.NArg() != 0 || opts.reset || opts.remove {
			return opts, errUsage
		}
		return opts, nil
	}
	if fs.NArg() != 1 || (opts.reset && opts.remove) {
		return opts, errUsage
	}
	opts.username = fs.Arg(0)
	return opts, nil
}

func run(ctx context.Context, opts options, users service.UserService, out io.Writer) error {
	switch {
	case opts.list:
		names, err := users.List(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	case opts.remove:
		if err := users.Remove(ctx, opts.username); err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %s\n", opts.username)
		return nil
	}

	password, err := promptPassword(out)
	if err != nil {
		return err
	}
	if err := users.Register(ctx, opts.username, password, opts.reset); err != nil {
		return err
	}
	if opts.reset {
		fmt.Fprintf(out, "password updated for %s\n", opts.username)
	} else {
		fmt.Fprintf(out, "created %s\n", opts.username)
	}
	return nil
}

func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	first, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(out, "Repeat password: ")
	second, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	logger := app.NewLogger(cfg.Log.Level)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	defer stores.Close()

	users := service.NewUserService(stores.Credentials, cfg.Auth.MinPasswordLength)
	if err := run(ctx, opts, users, os.Stdout); err != nil {
		stores.Close()
		logger.Fatalf("useradd: %v", err)
	}
}
