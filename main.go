package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"
)

const envPrefix = "GETFILES"

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stdout, "ERROR", err)
	}
	return exitCode(err)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "getfiles",
		Short: "Download the files of a remote directory",
		Long: "Connects to a remote file server (sftp by default, ftp:// also supported), downloads every file of " +
			"the remote directory into the local directory and optionally removes the remote copies once the " +
			"download is verified.",
		Args: func(c *cobra.Command, args []string) error {
			if len(args) > 0 {
				_ = c.Usage()
				return errors.Errorf("%w: unexpected arguments %q", ErrInvalidArguments, args)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(cmd.Flags(), v, stderr)
			if err != nil {
				return err
			}
			return runGetFiles(cmd.Context(), cfg, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		_ = c.Usage()
		return errors.Errorf("%w: %s", ErrInvalidArguments, err)
	})

	flags := cmd.Flags()
	registerFlags(flags)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "password_data" || f.Name == "help" {
			return
		}
		_ = v.BindPFlag(f.Name, f)
	})
	// password_data is repeatable on the command line; the environment can
	// only supply a single value.
	_ = v.BindEnv("password_data")

	return cmd
}

func registerFlags(flags *pflag.FlagSet) {
	flags.StringP("hostname", "s", "", "Remote host, host:port, or sftp:// / ftp:// URL (required)")
	flags.StringP("username", "u", "", "Remote username (required)")
	flags.StringArrayP("password_data", "p", nil, "Secret material for the password handler (repeatable)")
	flags.StringP("password_handler", "x", StrategyPlainText.String(),
		"One of CyberArk, PlainTextFile, EncryptedFile, EncryptedText, PlainText")
	flags.StringP("log", "g", "info", "Log level: debug, info, warning, error, critical")
	flags.StringP("remote_dir", "r", "", "Remote directory to download from")
	flags.StringP("local_dir", "l", "", "Local directory to download into (created when missing)")
	flags.BoolP("delete_remote", "d", false, "Remove remote files after a verified download")
	flags.IntP("port", "P", 0, "Port override (default 2222 for sftp, 21 for ftp)")
	flags.String("known_hosts", "", "known_hosts file; host keys are not verified when empty")
	flags.String("key_file", "", "Private key offered in addition to the password")
	flags.Duration("timeout", 0, "Connection timeout (0 waits indefinitely)")
	flags.String("report", "", "Write the run report as YAML to this file")
}

func loadRunConfig(flags *pflag.FlagSet, v *viper.Viper, prompt io.Writer) (*RunConfig, error) {
	level, err := parseLogLevel(v.GetString("log"))
	if err != nil {
		return nil, err
	}

	cfg := &RunConfig{
		Host:           v.GetString("hostname"),
		Port:           v.GetInt("port"),
		Username:       v.GetString("username"),
		RemoteDir:      v.GetString("remote_dir"),
		LocalDir:       v.GetString("local_dir"),
		DeleteRemote:   v.GetBool("delete_remote"),
		LogLevel:       level,
		KnownHosts:     v.GetString("known_hosts"),
		KeyFile:        v.GetString("key_file"),
		ConnectTimeout: v.GetDuration("timeout"),
		ReportPath:     v.GetString("report"),
		RunID:          uuid.NewString(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Strategy, err = ParseStrategy(v.GetString("password_handler"))
	if err != nil {
		return nil, err
	}

	if flags.Changed("password_data") {
		cfg.SecretMaterial, _ = flags.GetStringArray("password_data")
	} else if s := v.GetString("password_data"); s != "" {
		cfg.SecretMaterial = []string{s}
	} else if cfg.Strategy == StrategyPlainText && stdinIsTerminal() {
		password, err := askPassword(prompt)
		if err != nil {
			return nil, err
		}
		cfg.SecretMaterial = []string{password}
	}

	for _, p := range []*string{&cfg.LocalDir, &cfg.ReportPath} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, errors.Errorf("%w: %s: %s", ErrInvalidArguments, *p, err)
		}
		*p = abs
	}
	return cfg, nil
}

func runGetFiles(ctx context.Context, cfg *RunConfig, logOut io.Writer) error {
	logger := newRunLogger(logOut, cfg.LogLevel, cfg.RunID)
	ctx = logger.WithContext(ctx)
	logger.Debug().Object("args", cfg).Msg("Parsed arguments")

	secret, err := ResolveSecret(cfg.Strategy, cfg.SecretMaterial...)
	if err != nil {
		return err
	}
	defer secureWipe(secret)

	factories := buildConnectorFactories(connectOptions{
		knownHosts: cfg.KnownHosts,
		keyFile:    cfg.KeyFile,
		timeout:    cfg.ConnectTimeout,
	})
	target, factory, err := cfg.targetURL(factories)
	if err != nil {
		return err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return errors.Errorf("working directory: %w", err)
	}

	local := osfs.New("/")
	started := time.Now()
	report, err := NewSyncer(factory, local, workDir).Run(ctx, cfg, target, secret)
	if err != nil {
		return err
	}
	logger.Debug().Dur("elapsed", time.Since(started)).Msg("Run finished")

	if cfg.ReportPath != "" {
		if err := saveReport(local, cfg.ReportPath, report); err != nil {
			return err
		}
		logger.Info().Str("report", cfg.ReportPath).Msg("Wrote run report")
	}
	return nil
}
