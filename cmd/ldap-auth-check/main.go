// Command ldap-auth-check performs a single LDAP authentication attempt and
// prints the bound DN and role.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/isometry/ldap-auth-check/internal/config"
	"github.com/isometry/ldap-auth-check/internal/ldap"
)

// Exit codes.
const (
	exitOK         = 0
	exitAuthFailed = 1
	exitUsage      = 2
)

// PasswordEnv holds the password of the user being authenticated.
const PasswordEnv = "LDAP_USER_PASSWORD"

var (
	isTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}

	readPassword = func() (string, error) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}
)

// init the environment
func init() {
	_ = godotenv.Load()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options are the command line settings. Only flags given explicitly override
// the loaded configuration.
type options struct {
	configFile      string
	email           string
	host            string
	port            int
	baseDN          string
	tlsMode         string
	searchAndBind   bool
	serviceAccount  string
	searchAttribute string
	verbose         bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}

	fs := flag.NewFlagSet("ldap-auth-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "path to a TOML configuration file")
	fs.StringVar(&opts.email, "email", "", "login of the user to authenticate (required)")
	fs.StringVar(&opts.host, "host", "", "LDAP server host name or ldap:// / ldaps:// URL")
	fs.IntVar(&opts.port, "port", 0, "LDAP server port")
	fs.StringVar(&opts.baseDN, "base-dn", "", "base DN for user DNs and searches")
	fs.StringVar(&opts.tlsMode, "tls", "", "TLS mode: none, ldaps or starttls")
	fs.BoolVar(&opts.searchAndBind, "search-and-bind", false, "resolve the user DN with a service account search")
	fs.StringVar(&opts.serviceAccount, "service-account", "", "service account name (password from LDAP_SERVICE_ACCOUNT_PASSWORD)")
	fs.StringVar(&opts.searchAttribute, "search-attribute", "", "attribute matched against the login in search-and-bind mode")
	fs.BoolVar(&opts.verbose, "verbose", false, "log each directory entry returned by searches")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.email == "" {
		return nil, nil, errors.New("-email is required")
	}

	return opts, fs, nil
}

// apply overrides cfg with the flags that were set on the command line.
func (o *options) apply(fs *flag.FlagSet, cfg *ldap.Config) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = o.host
		case "port":
			cfg.Port = o.port
		case "base-dn":
			cfg.BaseDN = o.baseDN
		case "tls":
			var mode ldap.TLSMode
			if mode, err = ldap.ParseTLSMode(o.tlsMode); err == nil {
				cfg.TLSMode = mode
			}
		case "search-and-bind":
			cfg.UseSearchAndBind = o.searchAndBind
		case "service-account":
			cfg.ServiceAccountUsername = o.serviceAccount
		case "search-attribute":
			cfg.SearchAttribute = o.searchAttribute
		case "verbose":
			cfg.Verbose = o.verbose
		}
	})
	return err
}

// userPassword returns the password from the environment, or prompts for it
// when stdin is a terminal.
func userPassword(stderr io.Writer) (string, error) {
	if password, ok := os.LookupEnv(PasswordEnv); ok {
		return password, nil
	}

	if !isTerminal() {
		return "", fmt.Errorf("no password given: set %s or run from a terminal", PasswordEnv)
	}

	fmt.Fprint(stderr, "Password: ")
	password, err := readPassword()
	fmt.Fprintln(stderr)

	return password, err
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, authOpts ...ldap.Option) int {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitUsage
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if err := opts.apply(fs, &cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	authenticator, err := ldap.NewAuthenticator(cfg, append([]ldap.Option{
		ldap.WithLogger(newHCLogger(stderr, cfg.Verbose)),
	}, authOpts...)...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	password, err := userPassword(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	result, err := authenticator.Authenticate(ctx, opts.email, password)
	if err != nil {
		fmt.Fprintf(stderr, "Authentication failed (%s): %v\n", ldap.KindOf(err), err)
		return exitAuthFailed
	}

	role := result.Role
	if role == "" {
		role = "(none)"
	}
	fmt.Fprintf(stdout, "DN:   %s\nRole: %s\n", result.DN, role)

	return exitOK
}
