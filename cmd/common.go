package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/illarion/tokenlock/internal/ledger"
	"github.com/illarion/tokenlock/internal/locker"
)

var errNoConfirmation = errors.New("confirmation required, rerun with --yes")

// HandleError handles common errors consistently
func HandleError(err error) {
	switch {
	case errors.Is(err, ledger.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: ledger not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'tokenlock init' first\n")
	case errors.Is(err, locker.ErrConfigNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Run 'tokenlock config init' first\n")
	case errors.Is(err, locker.ErrTooEarlyToWithdraw):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'tokenlock lock withdraw --wait' to wait for the unlock date\n")
	case errors.Is(err, locker.ErrUnauthorized), errors.Is(err, ledger.ErrUnauthorized):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Declare the required key with --signer\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

// session is an open ledger with an engine on top of it
type session struct {
	ledger *ledger.Ledger
	engine *locker.Engine
	logger *zap.Logger
}

func (s *session) Close() {
	_ = s.logger.Sync()
	s.ledger.Close()
}

// openSession opens the configured ledger, which must already be initialized
func openSession() (*session, error) {
	path := viper.GetString("ledger")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ledger.ErrNotInitialized
		}
		return nil, err
	}

	logger, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	opts := []locker.Option{locker.WithLogger(logger)}
	if p := viper.GetString("program"); p != "" {
		program, err := parseKey("program", p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, locker.WithProgram(program))
	}

	l, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	ok, err := l.IsInitialized()
	if err != nil || !ok {
		l.Close()
		if err == nil {
			err = ledger.ErrNotInitialized
		}
		return nil, err
	}
	return &session{ledger: l, engine: locker.New(l, opts...), logger: logger}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func parseKey(name, s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return key, nil
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

// parseUnlockDate accepts "+<duration>", an RFC3339 time or unix seconds
func parseUnlockDate(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid unlock offset %q: %w", s, err)
		}
		return now.Add(d).Unix(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid unlock date %q: want +duration, RFC3339 or unix seconds", s)
	}
	return ts, nil
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// addSignerFlag registers --signer on c
func addSignerFlag(c *cobra.Command) {
	c.Flags().StringSlice("signer", nil, "address that signed the operation (repeatable)")
}

func getSigners(c *cobra.Command) (ledger.Signers, error) {
	raw, err := c.Flags().GetStringSlice("signer")
	if err != nil {
		return ledger.Signers{}, err
	}
	keys := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		k, err := parseKey("signer", s)
		if err != nil {
			return ledger.Signers{}, err
		}
		if !ledger.CanSign(k) {
			return ledger.Signers{}, fmt.Errorf("signer %s is a derived address and cannot sign", k)
		}
		keys = append(keys, k)
	}
	return ledger.NewSigners(keys...), nil
}

// keyFlag returns the key in flag name, or a fresh address if the flag is unset
func keyFlag(c *cobra.Command, name string) (solana.PublicKey, error) {
	s, err := c.Flags().GetString(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if s == "" {
		return solana.NewWallet().PublicKey(), nil
	}
	return parseKey(name, s)
}

// requiredKeyFlag returns the key in flag name, which must be set
func requiredKeyFlag(c *cobra.Command, name string) (solana.PublicKey, error) {
	s, err := c.Flags().GetString(name)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	return parseKey(name, s)
}

// confirm asks a yes/no question on the terminal unless yes is set
func confirm(prompt string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errNoConfirmation
	}
	fmt.Printf("%s [y/N]: ", prompt)

	var response string
	fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
