package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"linkbot/internal/app"
	"linkbot/internal/config"
	"linkbot/internal/logging"
)

var (
	configPath string
	verbose    bool

	flagNick        string
	flagKey         string
	flagHistoryFile string
	flagHistorySize int
	flagTitleTTL    time.Duration
	flagHTTPProxy   string
	flagIRCProxy    string
	flagAutosave    time.Duration
	flagLogLevel    string
	flagLogFormat   string
	flagNoConsole   bool
)

var rootCmd = &cobra.Command{
	Use:   "linkbot [flags] <server> <port> <channel>",
	Short: "IRC bot that answers links with their page title",
	Long: `linkbot joins one IRC channel and replies to every URL posted there with
the page title, or with who posted it first when the link was seen before.

Server, port and channel may also come from the config file or from
LINKBOT_SERVER, LINKBOT_PORT and LINKBOT_CHANNEL.

Operator commands on stdin:
  /n <nick>              change nick
  /j <channel> [key]     join a channel
  /m <target> <text>     private message
  /s <text>              say in the current channel
  /q                     quit`,
	Args:          cobra.MaximumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	f.StringVarP(&flagNick, "nick", "n", config.DefaultNick, "nickname")
	f.StringVarP(&flagKey, "key", "k", "", "channel key")
	f.StringVar(&flagHistoryFile, "history-file", "", "URL history log (default: per channel file in the user cache dir)")
	f.IntVar(&flagHistorySize, "history-size", 0, "number of URLs remembered (default 512)")
	f.DurationVar(&flagTitleTTL, "title-timeout", config.DefaultTitleTimeout, "page title fetch timeout")
	f.StringVar(&flagHTTPProxy, "http-proxy", "", `proxy for title fetches: "", "env" or a URL`)
	f.StringVar(&flagIRCProxy, "irc-proxy", "", "SOCKS5 proxy for the IRC connection")
	f.DurationVar(&flagAutosave, "autosave-interval", config.DefaultAutosaveInterval, "history autosave period (0 disables)")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flagLogFormat, "log-format", "", "console or json")
	f.BoolVar(&flagNoConsole, "no-console", false, "do not read operator commands from stdin")
}

func run(cmd *cobra.Command, args []string) error {
	if _, err := config.LoadDotEnv(""); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Verbose: verbose})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("server", cfg.Server),
		zap.Int("port", cfg.Port),
		zap.String("channel", cfg.Channel),
		zap.String("nick", cfg.Nick),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{Config: cfg, Logger: logger}
	if !flagNoConsole {
		opts.Console = os.Stdin
	}
	if err := app.Run(ctx, opts); err != nil {
		logger.Error("bot failed", zap.Error(err))
		return err
	}
	return nil
}

// applyFlags overlays explicitly set flags and positional arguments.
func applyFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	f := cmd.Flags()
	if f.Changed("nick") {
		cfg.Nick = flagNick
	}
	if f.Changed("key") {
		cfg.Key = flagKey
	}
	if f.Changed("history-file") {
		cfg.HistoryFile = flagHistoryFile
	}
	if f.Changed("history-size") {
		cfg.HistorySize = flagHistorySize
	}
	if f.Changed("title-timeout") {
		cfg.TitleTimeout = flagTitleTTL
	}
	if f.Changed("http-proxy") {
		cfg.HTTPProxy = flagHTTPProxy
	}
	if f.Changed("irc-proxy") {
		cfg.IRCProxy = flagIRCProxy
	}
	if f.Changed("autosave-interval") {
		cfg.AutosaveInterval = flagAutosave
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}

	if len(args) > 0 {
		cfg.Server = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: port %q is not a number", config.ErrInvalid, args[1])
		}
		cfg.Port = port
	}
	if len(args) > 2 {
		cfg.Channel = args[2]
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
