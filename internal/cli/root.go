// Package cli implements the luaspect command line.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

// ErrUncaught is returned when the script ended with an uncaught error. The
// error has already been printed.
var ErrUncaught = errors.New("uncaught script error")

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewRootCmd creates the luaspect command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "luaspect",
		Short: "Run Lua scripts with an attachable debugger",
		Long: `luaspect runs Lua scripts and exposes them to debugger frontends that
speak the inspector protocol over a WebSocket or standard I/O.

Examples:
  luaspect run main.lua                 Run a script
  luaspect run --inspect main.lua       Run with a debugger endpoint
  luaspect run --inspect-brk main.lua   Wait for a debugger, stop on line 1
  luaspect run --stdio main.lua         Speak the protocol on stdin/stdout`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(info))
	root.AddCommand(newVersionCmd(info))
	return root
}

// Execute runs the command line with args.
func Execute(ctx context.Context, info BuildInfo, args []string) error {
	root := NewRootCmd(info)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("luaspect %s\n", info.Version)
			cmd.Printf("Commit: %s\n", info.Commit)
			cmd.Printf("Built: %s\n", info.Date)
		},
	}
}
