package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/luaspect/internal/config"
	"github.com/dshills/luaspect/internal/engine"
	"github.com/dshills/luaspect/internal/frontend"
	"github.com/dshills/luaspect/internal/logging"
)

const shutdownTimeout = 2 * time.Second

type runFlags struct {
	configPath  string
	inspect     string
	inspectBrk  string
	inspectWait string
	stdio       bool
	logLevel    string
	pretty      bool
}

func newRunCmd(info BuildInfo) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <script.lua> [args...]",
		Short: "Run a Lua script",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runScript(cmd, info, cfg, flags.configPath, args[0], args[1:])
		},
	}

	bindRunFlags(cmd, flags)
	return cmd
}

func bindRunFlags(cmd *cobra.Command, flags *runFlags) {
	f := cmd.Flags()
	f.SetInterspersed(false)
	f.StringVarP(&flags.configPath, "config", "c", "", "Path to a TOML or YAML configuration file")
	f.StringVar(&flags.inspect, "inspect", "", "Start the debugger endpoint on `host:port`")
	f.StringVar(&flags.inspectBrk, "inspect-brk", "", "Like --inspect, wait for a debugger and stop on the first line")
	f.StringVar(&flags.inspectWait, "inspect-wait", "", "Like --inspect, wait for a debugger before running")
	f.BoolVar(&flags.stdio, "stdio", false, "Speak the debugger protocol on stdin/stdout")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	f.BoolVar(&flags.pretty, "pretty", false, "Human-readable log output")

	// The address is optional: --inspect alone uses the configured default.
	for _, name := range []string{"inspect", "inspect-brk", "inspect-wait"} {
		f.Lookup(name).NoOptDefVal = " "
	}
}

// resolveConfig layers command line flags over the loaded configuration.
func resolveConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	listen := func(value string) {
		cfg.Inspector.Enabled = true
		if value != " " && value != "" {
			cfg.Inspector.Listen = value
		}
	}
	if f.Changed("inspect") {
		listen(flags.inspect)
	}
	if f.Changed("inspect-wait") {
		listen(flags.inspectWait)
		cfg.Inspector.Wait = true
	}
	if f.Changed("inspect-brk") {
		listen(flags.inspectBrk)
		cfg.Inspector.BreakOnStart = true
	}
	if flags.stdio {
		cfg.Inspector.Enabled = true
		cfg.Inspector.Transport = config.TransportStdio
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if f.Changed("pretty") {
		cfg.Logging.Pretty = flags.pretty
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScript(cmd *cobra.Command, info BuildInfo, cfg *config.Config, configPath, script string, args []string) error {
	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	if configPath != "" {
		pinned := cmd.Flags().Changed("log-level")
		w, err := config.NewWatcher(configPath, reloadLogLevel(logger, pinned), config.WithErrorHandler(func(err error) {
			logger.Warn().Err(err).Msg("config reload failed")
		}))
		if err != nil {
			logger.Warn().Err(err).Msg("config watch disabled")
		} else {
			defer w.Close()
		}
	}

	ctx := cmd.Context()
	if cfg.Engine.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Engine.Timeout.Std())
		defer cancel()
	}

	contextName := cfg.Inspector.ContextName
	if contextName == "" {
		contextName = filepath.Base(script)
	}
	opts := []engine.Option{
		engine.WithLogger(logger.With().Str("component", "engine").Logger()),
		engine.WithContextName(contextName),
		engine.WithLibraries(cfg.Engine.Libraries...),
		engine.WithOutput(cmd.OutOrStdout()),
	}
	if cfg.Inspector.BreakOnStart {
		opts = append(opts, engine.WithBreakOnStart())
	}
	if cfg.Inspector.Enabled && cfg.Inspector.Transport == config.TransportStdio {
		// stdout carries protocol frames.
		opts = append(opts, engine.WithOutput(cmd.ErrOrStderr()))
	}

	e := engine.New(opts...)
	defer e.Close()
	e.SetArgs(script, args)

	if cfg.Inspector.Enabled {
		stop, err := startFrontend(cmd, info, cfg, e, logger, script)
		if err != nil {
			return err
		}
		defer stop()

		if cfg.Inspector.Wait || cfg.Inspector.BreakOnStart {
			if err := e.WaitForFrontend(ctx); err != nil {
				return fmt.Errorf("waiting for debugger: %w", err)
			}
		}
	}

	err := e.RunFile(ctx, script)
	if err == nil {
		err = e.Run(ctx)
	}

	var serr *engine.ScriptError
	if errors.As(err, &serr) {
		fmt.Fprintln(cmd.ErrOrStderr(), serr.Traceback())
		return ErrUncaught
	}
	return err
}

// reloadLogLevel applies the reloaded log level unless --log-level pinned it.
func reloadLogLevel(logger zerolog.Logger, pinned bool) func(*config.Config) {
	return func(next *config.Config) {
		if pinned {
			return
		}
		if err := logging.SetLevel(next.Logging.Level); err == nil {
			logger.Info().Str("level", next.Logging.Level).Msg("log level reloaded")
		}
	}
}

// startFrontend starts the configured transport and returns its shutdown.
func startFrontend(cmd *cobra.Command, info BuildInfo, cfg *config.Config, e *engine.Engine, logger zerolog.Logger, script string) (func(), error) {
	feOpts := []frontend.Option{
		frontend.WithLogger(logger.With().Str("component", "frontend").Logger()),
		frontend.WithPollInterval(cfg.Inspector.PollInterval.Std()),
	}

	if cfg.Inspector.Transport == config.TransportStdio {
		sink := frontend.NewStreamSink(frontend.Stdio(), feOpts...)
		if err := sink.Attach(e, e.Loop()); err != nil {
			return nil, err
		}
		return func() { _ = sink.Close() }, nil
	}

	abs, err := filepath.Abs(script)
	if err != nil {
		abs = script
	}
	srv := frontend.NewServer(e, e.Loop(), frontend.Target{
		ID:      uuid.NewString(),
		Title:   filepath.Base(script),
		URL:     "file://" + filepath.ToSlash(abs),
		Product: "luaspect/" + info.Version,
	}, feOpts...)
	if err := srv.Start(cfg.Inspector.Listen); err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Debugger listening on %s\n", srv.WebSocketURL())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Debug().Err(err).Msg("inspector server shutdown")
		}
	}, nil
}
