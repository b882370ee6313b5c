package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/daviddao/nirvana/internal/auth"
	"github.com/daviddao/nirvana/internal/config"
	"github.com/daviddao/nirvana/internal/gmail"
	"github.com/daviddao/nirvana/internal/jira"
	"github.com/daviddao/nirvana/internal/llm"
	"github.com/daviddao/nirvana/internal/logging"
	"github.com/daviddao/nirvana/internal/store"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	cfgFile    string
	jsonOutput bool

	v      = config.New()
	cfg    *config.Config
	logger = zap.NewNop()
	db     *store.Store
)

var rootCmd = &cobra.Command{
	Use:   "nv",
	Short: "nv - per-user SQL store grown from email",
	Long: `Nirvana keeps one namespace per user. A language model reads incoming
email and writes what matters into that namespace as SQL, creating tables
as needed; a catalog of every table and its columns is kept in step so the
model always knows what already exists.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}

		if !needsStore(cmd) {
			return nil
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		db, err = store.Open(cmd.Context(), cfg.Database.Store(), logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			if err := db.Close(); err != nil {
				logger.Warn("close store", zap.Error(err))
			}
			db = nil
		}
		_ = logger.Sync()
	},
}

// needsStore reports whether cmd touches the database. Annotated commands
// and their children run without one.
func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["store"] == "none" {
			return false
		}
	}
	return cmd.Runnable() && cmd.Name() != "help"
}

var noStore = map[string]string{"store": "none"}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version",
	Annotations: noStore,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nv version %s\n", Version)
	},
}

// openSession opens a session bound to the configured user's namespace,
// creating the namespace on first use.
func openSession(ctx context.Context) (*store.Session, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("no user configured: pass --user or set NIRVANA_USER")
	}
	sess, err := db.Session(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Use(ctx, cfg.User); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func newModel() (llm.Model, error) {
	m, err := llm.NewAnthropic(llm.Config{
		APIKey:    cfg.LLM.AnthropicAPIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newJira(ctx context.Context) (*jira.Client, error) {
	if cfg.Jira.CloudID == "" || cfg.Jira.AccessToken == "" {
		return nil, fmt.Errorf("jira.cloud_id and jira.access_token are required")
	}
	var opts []jira.Option
	if cfg.Jira.BaseURL != "" {
		opts = append(opts, jira.WithBaseURL(cfg.Jira.BaseURL))
	}
	return jira.New(ctx, cfg.Jira.CloudID, cfg.Jira.AccessToken, opts...), nil
}

func newGmail(ctx context.Context) (*gmail.Client, error) {
	hc, err := auth.GmailClient(ctx, cfg.Gmail.Credentials, logger)
	if err != nil {
		return nil, err
	}
	return gmail.New(ctx, logger, option.WithHTTPClient(hc))
}

// emailFlags select where an email body comes from.
type emailFlags struct {
	messageID string
	file      string
}

func (f *emailFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.messageID, "message", "m", "", "Gmail message ID to read")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read the email from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("message", "file")
}

// read returns the email text from Gmail, a file, or stdin when neither
// flag is set.
func (f *emailFlags) read(ctx context.Context, stdin io.Reader) (string, error) {
	if f.messageID != "" {
		c, err := newGmail(ctx)
		if err != nil {
			return "", err
		}
		msg, err := c.Read(ctx, f.messageID)
		if err != nil {
			return "", err
		}
		return msg.Text(), nil
	}
	return readInput(f.file, stdin)
}

// readInput reads path, or stdin when path is "" or "-".
func readInput(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("empty input")
	}
	return text, nil
}

func printJSON(w io.Writer, val any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: $HOME/.nirvana/nirvana.yaml)")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.StringP("user", "u", "", "User identity whose namespace is used")
	flags.String("backend", "", "Storage backend: sqlite or postgres")
	flags.String("dsn", "", "Postgres connection string")
	flags.String("data-dir", "", "Directory for sqlite namespace files")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	for key, flag := range map[string]string{
		"user":              "user",
		"database.backend":  "backend",
		"database.dsn":      "dsn",
		"database.data_dir": "data-dir",
		"logging.level":     "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
