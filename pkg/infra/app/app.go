// Package app builds the cobra command for a service binary. Configuration
// is layered as: flag defaults, config file, environment, explicit flags.
// Dotenv files are loaded first and never override variables already set.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"
)

// CliOptions is implemented by the options struct handed to WithOptions.
type CliOptions interface {
	Flags() cliflag.NamedFlagSets
	Complete() error
	Validate() error
}

// RunFunc runs the service until ctx is cancelled.
type RunFunc func(ctx context.Context) error

// App is a configured root command.
type App struct {
	name        string
	description string
	options     CliOptions
	runFunc     RunFunc
	envFiles    []string
	noVersion   bool
	noConfig    bool
	silence     bool

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithName(name string) Option         { return func(a *App) { a.name = name } }
func WithDescription(desc string) Option  { return func(a *App) { a.description = desc } }
func WithOptions(opts CliOptions) Option  { return func(a *App) { a.options = opts } }
func WithRunFunc(run RunFunc) Option      { return func(a *App) { a.runFunc = run } }
func WithEnvFiles(files ...string) Option { return func(a *App) { a.envFiles = files } }
func WithNoVersion() Option               { return func(a *App) { a.noVersion = true } }
func WithNoConfig() Option                { return func(a *App) { a.noConfig = true } }
func WithSilence() Option                 { return func(a *App) { a.silence = true } }

// NewApp creates the application. envFiles defaults to ".env".
func NewApp(opts ...Option) *App {
	a := &App{
		name:     filepath.Base(os.Args[0]),
		envFiles: []string{".env"},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cmd = a.command()
	return a
}

func (a *App) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           a.name,
		Long:          a.description,
		Args:          cobra.NoArgs,
		RunE:          a.runE,
		SilenceUsage:  true,
		SilenceErrors: a.silence,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	pfs := cmd.PersistentFlags()
	if !a.noConfig {
		pfs.StringP("config", "c", "", "Config file (default: ./"+a.name+".yaml, ./configs, ~/."+a.name+", /etc/"+a.name+").")
	}
	if !a.noVersion {
		version.AddFlags(pfs)
	}

	if a.options == nil {
		return cmd
	}
	fss := a.options.Flags()
	for _, name := range fss.Order {
		cmd.Flags().AddFlagSet(fss.FlagSets[name])
	}
	// 按分组输出帮助
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		fmt.Fprintf(c.OutOrStdout(), "%s\n\nUsage:\n  %s\n", c.Long, c.UseLine())
		cliflag.PrintSections(c.OutOrStdout(), fss, 0)
		fmt.Fprintf(c.OutOrStdout(), "\nGlobal flags:\n%s", pfs.FlagUsages())
	})
	return cmd
}

func (a *App) runE(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}
	if err := loadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	if !a.noConfig && a.options != nil {
		if err := bindConfig(cmd, a.name, a.options); err != nil {
			return err
		}
	}
	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	if a.runFunc == nil {
		return nil
	}
	return a.runFunc(cmd.Context())
}

// Run executes the command with a context cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
		<-sigs
		os.Exit(1)
	}()

	if err := a.cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the root command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// GetVersion returns the git version stamped at build time.
func GetVersion() string {
	return version.Get().GitVersion
}
