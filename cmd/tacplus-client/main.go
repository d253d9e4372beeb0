// Package main provides an example TACACS+ client CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nvolodin/tacplus"
)

// config holds the environment-driven settings of the CLI. Connection
// parameters come from the environment (with a .env fallback) so secrets
// stay out of shell history; per-invocation parameters come from flags.
type config struct {
	Server         string        `env:"TACPLUS_SERVER" envDefault:"localhost:49"`
	Secret         string        `env:"TACPLUS_SECRET"`
	Timeout        time.Duration `env:"TACPLUS_TIMEOUT" envDefault:"30s"`
	SingleConnect  bool          `env:"TACPLUS_SINGLE_CONNECT" envDefault:"false"`
	AllowClearText bool          `env:"TACPLUS_ALLOW_CLEAR_TEXT" envDefault:"false"`
	UseTLS         bool          `env:"TACPLUS_TLS" envDefault:"false"`
	TLSInsecure    bool          `env:"TACPLUS_TLS_INSECURE" envDefault:"false"`
	LogLevel       string        `env:"TACPLUS_LOG_LEVEL" envDefault:"info"`
}

func main() {
	var (
		mode     = flag.String("mode", "authenticate", "Operation mode: authenticate, authorize, or account")
		user     = flag.String("user", "", "Username for authentication/authorization")
		pass     = flag.String("pass", "", "Password for authentication")
		args     = flag.String("args", "", "Comma-separated name=value arguments for authorization/accounting")
		acctType = flag.String("acct-type", "start", "Accounting type: start, stop, or watchdog")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine; plain environment variables are used.
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
			os.Exit(2)
		}
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse environment: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)

	if *user == "" {
		logger.Error("-user flag is required")
		os.Exit(2)
	}

	opts := []tacplus.ClientOption{
		tacplus.WithTimeout(cfg.Timeout),
		tacplus.WithLogger(logger),
		tacplus.WithSingleConnect(cfg.SingleConnect),
		tacplus.WithAllowClearTextReplies(cfg.AllowClearText),
	}

	if cfg.Secret != "" {
		opts = append(opts, tacplus.WithSecret(cfg.Secret))
	}

	if cfg.UseTLS {
		host := cfg.Server
		if i := strings.LastIndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		opts = append(opts, tacplus.WithTLSConfig(tacplus.NewTLSClientConfig(host, cfg.TLSInsecure)))
	}

	client := tacplus.NewClient(cfg.Server, opts...)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	switch *mode {
	case "authenticate":
		if *pass == "" {
			logger.Error("-pass flag is required for authentication mode")
			os.Exit(2)
		}
		runAuthentication(ctx, client, logger, *user, *pass)

	case "authorize":
		runAuthorization(ctx, client, logger, *user, parseArgs(*args))

	case "account":
		runAccounting(ctx, client, logger, *user, parseArgs(*args), *acctType)

	default:
		logger.Error("unknown mode", slog.String("mode", *mode))
		os.Exit(2)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func parseArgs(argsStr string) []tacplus.Argument {
	if argsStr == "" {
		return nil
	}

	parts := strings.Split(argsStr, ",")
	args := make([]tacplus.Argument, 0, len(parts))
	for _, part := range parts {
		name, value, found := strings.Cut(part, "=")
		if !found {
			name, value, _ = strings.Cut(part, "*")
			args = append(args, tacplus.NewOptionalArgument(name, value))
			continue
		}
		args = append(args, tacplus.NewArgument(name, value))
	}
	return args
}

func runAuthentication(ctx context.Context, client *tacplus.Client, logger *slog.Logger, user, pass string) {
	reply, err := client.Authenticate(ctx, user, pass)
	if err != nil {
		logger.Error("authentication error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if reply.IsPass() {
		fmt.Println("Authentication: PASS")
		printServerMsg(reply.ServerMsg)
		return
	}

	fmt.Println("Authentication: FAIL")
	printServerMsg(reply.ServerMsg)
	os.Exit(1)
}

func runAuthorization(ctx context.Context, client *tacplus.Client, logger *slog.Logger, user string, args []tacplus.Argument) {
	resp, err := client.Authorize(ctx, user, args)
	if err != nil {
		logger.Error("authorization error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if resp.IsPass() {
		fmt.Println("Authorization: PASS")
		for i := range resp.Args {
			fmt.Printf("  %s\n", resp.Args[i].String())
		}
		printServerMsg(resp.ServerMsg)
		return
	}

	fmt.Println("Authorization: FAIL")
	printServerMsg(resp.ServerMsg)
	os.Exit(1)
}

func runAccounting(ctx context.Context, client *tacplus.Client, logger *slog.Logger, user string, args []tacplus.Argument, acctType string) {
	var flags uint8
	switch acctType {
	case "start":
		flags = tacplus.AcctFlagStart
	case "stop":
		flags = tacplus.AcctFlagStop
	case "watchdog":
		flags = tacplus.AcctFlagWatchdog
	default:
		logger.Error("unknown accounting type", slog.String("acct_type", acctType))
		os.Exit(2)
	}

	reply, err := client.Accounting(ctx, flags, user, args)
	if err != nil {
		logger.Error("accounting error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if reply.IsSuccess() {
		fmt.Printf("Accounting %s: SUCCESS\n", acctType)
		printServerMsg(reply.ServerMsg)
		return
	}

	fmt.Printf("Accounting %s: ERROR\n", acctType)
	printServerMsg(reply.ServerMsg)
	os.Exit(1)
}

func printServerMsg(msg []byte) {
	if len(msg) > 0 {
		fmt.Printf("Server message: %s\n", string(msg))
	}
}
