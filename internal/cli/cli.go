// Package cli is the command line shared by the relay binaries. Each binary
// only chooses a name and a listener profile.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayanrajpoot10/ssh-relay/internal/config"
	"github.com/ayanrajpoot10/ssh-relay/internal/logging"
	"github.com/ayanrajpoot10/ssh-relay/internal/tunnel"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// RunFunc serves the given listeners until ctx is cancelled.
type RunFunc func(ctx context.Context, log *zap.Logger, configs []config.Listener) error

// App describes one relay binary.
type App struct {
	Name  string
	Short string
	// Profile builds the listener template for a bind address.
	Profile func(bindAddress string) config.Listener

	// Run defaults to Serve.
	Run    RunFunc
	Logger *zap.Logger
	Stdout io.Writer
	Stderr io.Writer
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// Command builds the cobra command for a.
func (a App) Command() *cobra.Command {
	var (
		bind  string
		ports string
	)
	cmd := &cobra.Command{
		Use:   a.Name + " [port[,port...]]",
		Short: a.Short,
		Example: strings.Join([]string{
			"  " + a.Name + " 80,2082,8080",
			"  " + a.Name + " -p 80,2082,8080",
			"  " + a.Name + " -b 0.0.0.0 -p 80,2082,8080",
		}, "\n"),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usageError{fmt.Errorf("expected at most one port list, got %d arguments", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := ports
			if list == "" && len(args) == 1 {
				list = args[0]
			}
			portList := []int{config.DefaultListenPort}
			if list != "" {
				var err error
				if portList, err = config.ParsePorts(list); err != nil {
					return usageError{err}
				}
			}
			configs := config.ForPorts(a.Profile(bind), portList)
			return a.run(cmd.Context(), configs)
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
	cmd.Flags().StringVarP(&bind, "bind", "b", config.DefaultBindAddress, "address to listen on")
	cmd.Flags().StringVarP(&ports, "port", "p", "", "comma-separated ports to listen on (default 80)")
	if a.Stdout != nil {
		cmd.SetOut(a.Stdout)
	}
	if a.Stderr != nil {
		cmd.SetErr(a.Stderr)
	}
	return cmd
}

func (a App) run(ctx context.Context, configs []config.Listener) error {
	log := a.Logger
	if log == nil {
		var err error
		if log, err = logging.New(false); err != nil {
			return err
		}
		defer log.Sync()
	}
	ports := make([]int, 0, len(configs))
	for _, c := range configs {
		ports = append(ports, c.Port)
	}
	log.Info("starting "+a.Name,
		zap.String("bind", configs[0].BindAddress),
		zap.Ints("ports", ports),
		zap.Stringer("policy", configs[0].Policy),
		zap.String("default_destination", configs[0].DefaultDestination))

	run := a.Run
	if run == nil {
		run = Serve
	}
	return run(ctx, log, configs)
}

// Serve runs a tunnel.Manager for configs until ctx is cancelled.
func Serve(ctx context.Context, log *zap.Logger, configs []config.Listener) error {
	return tunnel.Run(ctx, tunnel.NewManager(log), configs)
}

// Execute runs the command with args and returns the process exit code. An
// interrupt or SIGTERM stops every listener.
func (a App) Execute(args []string) int {
	cmd := a.Command()
	cmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		cmd.SetOut(cmd.ErrOrStderr())
		cmd.Usage()
		return ExitUsage
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return ExitFailure
}
