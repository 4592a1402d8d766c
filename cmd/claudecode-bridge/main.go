// Package main is the tool-call bridge subprocess entrypoint (§4.3). The
// `claude` CLI spawns this binary as an MCP stdio server to advertise
// registered function tools, and (via the "permission-hook" subcommand) as
// a PreToolUse hook to enforce the permission gate (§4.6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drillan/claudecode-model/internal/bridge"
	"github.com/drillan/claudecode-model/internal/permission"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "claudecode-bridge <socket-path> <schema-path>",
		Short:         "Relay tool-server requests from the claude CLI to the parent process",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context(), args[0], args[1])
		},
	}
	cmd.AddCommand(buildPermissionHookCmd())
	return cmd
}

func runBridge(ctx context.Context, socketPath, schemaPath string) error {
	schemas, err := bridge.LoadSchemas(schemaPath)
	if err != nil {
		return err
	}
	b := bridge.New(socketPath, schemas)
	return b.Run(ctx, os.Stdin, os.Stdout)
}

func buildPermissionHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "permission-hook <restriction-table-path>",
		Short:         "Answer a single PreToolUse hook call against a restriction table",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPermissionHook(args[0])
		},
	}
}

func runPermissionHook(tablePath string) error {
	data, err := os.ReadFile(tablePath)
	if err != nil {
		return fmt.Errorf("permission-hook: failed to read restriction table: %w", err)
	}
	var table permission.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("permission-hook: failed to parse restriction table: %w", err)
	}
	return permission.RunHook(os.Stdin, os.Stdout, table)
}
