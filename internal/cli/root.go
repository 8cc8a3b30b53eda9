// Package cli provides the tg-upload command line. Without a subcommand it
// starts the terminal UI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/auth"
	"github.com/danhigham/tgupload/internal/catalog"
	"github.com/danhigham/tgupload/internal/config"
	"github.com/danhigham/tgupload/internal/media"
	"github.com/danhigham/tgupload/internal/state"
	"github.com/danhigham/tgupload/internal/telegram"
	"github.com/danhigham/tgupload/internal/ui"
	"github.com/danhigham/tgupload/internal/upload"
)

// env holds everything a command needs. It is built once in
// PersistentPreRunE.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	settings *state.Store
	session  *telegram.SessionFile
	auth     *auth.Controller
	catalog  *catalog.Loader
	upload   *upload.Engine
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var (
		cfgPath  string
		logLevel string
		e        = &env{}
	)

	root := &cobra.Command{
		Use:   "tg-upload",
		Short: "Upload video folders to a Telegram conversation",
		Long: `tg-upload sends every video in a folder to one Telegram chat, one file
at a time, with a caption built from an optional prefix and the file name.

Run without a subcommand to open the terminal UI. Settings are shared
between the UI and the subcommands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cfgPath, logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app := ui.NewApp(cmd.Context(), ui.Deps{
				Settings:            e.settings,
				Auth:                e.auth,
				Catalog:             e.catalog,
				Upload:              e.upload,
				Session:             e.session,
				Logger:              e.logger.Named("ui"),
				DefaultDelaySeconds: e.cfg.Upload.DelaySeconds,
				DefaultConcurrency:  e.cfg.Upload.Concurrency,
			})
			return app.Run()
		},
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Configuration file (default "+filepath.Join(config.Dir(), "config.yaml")+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides the config file")

	root.AddCommand(
		newStatusCmd(e),
		newLoginCmd(e),
		newChatsCmd(e),
		newUploadCmd(e),
		newResetCmd(e),
	)
	return root
}

func (e *env) setup(cfgPath, logLevel string) error {
	if cfgPath == "" {
		cfgPath = filepath.Join(config.Dir(), "config.yaml")
	}
	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	// The terminal belongs to the UI, so logs go to a file.
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logPath := filepath.Join(dir, "tg-upload.log")
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = level
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	settings := state.New(cfg.SettingsFile, logger.Named("settings"))
	if err := seedSettings(settings, cfg.Telegram); err != nil {
		logger.Warn("seed settings", zap.Error(err))
	}

	dialer := telegram.NewGotdDialer(cfg.SessionFile, logger.Named("telegram"))
	prober := media.NewFFProbe(cfg.Upload.FFProbe, logger.Named("probe"))

	e.cfg = cfg
	e.logger = logger
	e.settings = settings
	e.session = telegram.NewSessionFile(cfg.SessionFile, logger.Named("session"))
	e.auth = auth.New(dialer, logger, auth.WithCodeTimeout(cfg.Auth.CodeTimeout))
	e.catalog = catalog.New(dialer, logger)
	e.upload = upload.New(dialer, prober, logger,
		upload.WithCaptionLimit(cfg.Upload.CaptionLimit),
		upload.WithWarmDialogs(cfg.Upload.WarmDialogs),
	)

	logger.Info("tg-upload started",
		zap.String("config", cfgPath),
		zap.String("settings", cfg.SettingsFile),
		zap.String("session", cfg.SessionFile),
	)
	return nil
}

// seedSettings copies credentials from the config file into settings that
// have none yet.
func seedSettings(s *state.Store, tc config.TelegramConfig) error {
	values := map[string]any{}
	if tc.APIID != 0 && s.String(state.KeyAPIID, "") == "" {
		values[state.KeyAPIID] = strconv.Itoa(tc.APIID)
	}
	if tc.APIHash != "" && s.String(state.KeyAPIHash, "") == "" {
		values[state.KeyAPIHash] = tc.APIHash
	}
	if tc.Phone != "" && s.String(state.KeyPhone, "") == "" {
		values[state.KeyPhone] = tc.Phone
	}
	if len(values) == 0 {
		return nil
	}
	return s.SetMany(values)
}
