// Package main is a demonstration CLI wiring the claudecode facade to a
// real `claude` binary: a single prompt in, the assembled response out.
// It exists to exercise the facade end-to-end, not as a production
// gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drillan/claudecode-model/claudecode"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "claudecode-chat <prompt>",
		Short:         "Send a single prompt to the claude CLI via the claudecode facade",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		model            string
		workingDirectory string
		maxTurns         int
		stream           bool
	)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), chatOptions{
			prompt:           args[0],
			model:            model,
			workingDirectory: workingDirectory,
			maxTurns:         maxTurns,
			stream:           stream,
		})
	}
	cmd.Flags().StringVar(&model, "model", claudecode.DefaultModelName, "model name passed to the claude CLI")
	cmd.Flags().StringVar(&workingDirectory, "working-directory", "", "working directory for the claude CLI subprocess")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "maximum agent turns (0 uses the facade's default)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print every stream event instead of only the final response")

	return cmd
}

type chatOptions struct {
	prompt           string
	model            string
	workingDirectory string
	maxTurns         int
	stream           bool
}

func runChat(ctx context.Context, opts chatOptions) error {
	configOpts := []claudecode.ConfigOption{}
	if opts.workingDirectory != "" {
		configOpts = append(configOpts, claudecode.WithWorkingDirectory(opts.workingDirectory))
	}
	if opts.maxTurns > 0 {
		configOpts = append(configOpts, claudecode.WithMaxTurns(opts.maxTurns))
	}

	model := claudecode.New(claudecode.NewConfig(opts.model, configOpts...))

	if !opts.stream {
		resp, err := model.Request(ctx, opts.prompt, nil, claudecode.RequestParams{})
		if err != nil {
			return fmt.Errorf("claudecode-chat: request failed: %w", err)
		}
		return printResponse(resp)
	}

	events, err := model.StreamMessages(ctx, opts.prompt, nil, claudecode.RequestParams{})
	if err != nil {
		return fmt.Errorf("claudecode-chat: failed to start stream: %w", err)
	}
	for ev := range events {
		if ev.Err != nil {
			return fmt.Errorf("claudecode-chat: stream failed: %w", ev.Err)
		}
		if err := printEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func printResponse(resp claudecode.Response) error {
	for _, part := range resp.Parts {
		fmt.Println(part.Text)
	}
	return nil
}

func printEvent(ev claudecode.Event) error {
	switch ev.Kind {
	case claudecode.EventAssistant:
		if ev.Text != "" {
			fmt.Println(ev.Text)
		}
		if ev.ToolUse != nil {
			fmt.Fprintf(os.Stderr, "tool_use: %s\n", ev.ToolUse.Name)
		}
	case claudecode.EventTerminal:
		encoded, err := json.MarshalIndent(ev.Terminal, "", "  ")
		if err != nil {
			return fmt.Errorf("claudecode-chat: failed to encode terminal event: %w", err)
		}
		fmt.Fprintln(os.Stderr, string(encoded))
	}
	return nil
}
