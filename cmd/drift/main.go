// cmd/drift/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"drift/internal/config"
	derr "drift/internal/errors"
	"drift/internal/logging"
	"drift/internal/repo"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries the state of one CLI invocation.
type app struct {
	v       *viper.Viper
	dir     string
	cfgFile string
	out     io.Writer
	log     *logging.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: config.NewViper(), out: out, log: logging.Nop()}

	rootCmd := &cobra.Command{
		Use:   "drift",
		Short: "drift is a small version control system with object storage remotes",
		Long: `drift tracks snapshots of a working copy in a linear history and
synchronizes that history with an S3, GCS, local directory or in-memory remote.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(a.v.GetString("log_level"), true)
			if err != nil {
				return derr.ValidationError("invalid log level %q: %v", a.v.GetString("log_level"), err)
			}
			a.log = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.log.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.dir, "dir", "C", ".", "run as if drift was started in this directory")
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .drift/config.yaml)")
	flags.String("remote", "", "remote URL, overriding the configured one")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	a.v.BindPFlag("remote.url", flags.Lookup("remote"))
	a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		a.initCmd(),
		a.addCmd(),
		a.resetCmd(),
		a.commitCmd(),
		a.pushCmd(),
		a.pullCmd(),
		a.revertCmd(),
		a.logCmd(),
		a.statusCmd(),
		a.diffCmd(),
		a.remoteCmd(),
	)
	return rootCmd
}

// openRepo finds the repository containing the working directory and opens
// it. The caller must Close it.
func (a *app) openRepo(cmd *cobra.Command) (*repo.Repository, error) {
	root, err := repo.FindRoot(a.dir)
	if err != nil {
		return nil, err
	}
	return repo.Open(root, repo.Options{
		Viper:      a.v,
		ConfigFile: a.cfgFile,
		Logger:     a.log.ForCommand(cmd.Name()),
	})
}

// withRepo runs fn with an opened repository and closes it afterwards,
// reporting a close failure only when fn succeeded.
func (a *app) withRepo(cmd *cobra.Command, fn func(r *repo.Repository) error) (err error) {
	r, err := a.openRepo(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				r.Logger.Warn("closing repository", zap.Error(cerr))
			}
		}
	}()
	return fn(r)
}

// pathArg resolves a command line path against the -C directory.
func (a *app) pathArg(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	base, err := filepath.Abs(a.dir)
	if err != nil {
		return "", fmt.Errorf("getting absolute path for %s: %w", a.dir, err)
	}
	return filepath.Join(base, p), nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(derr.ExitCode(err))
	}
}
