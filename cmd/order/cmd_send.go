package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orderlabs/order/internal/capability"
)

var sendFlags struct {
	connection string
	system     string
	noTools    bool
}

var sendCmd = &cobra.Command{
	Use:   "send [prompt...]",
	Short: "Send a prompt through the negotiation engine",
	Long: "Send resolves the connection's effective capabilities, performs the\n" +
		"request, and negotiates downward on capability rejections. Downgrades\n" +
		"are persisted so later requests skip the failed feature.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVarP(&sendFlags.connection, "connection", "c", "", "Connection name from the workspace config (default: first)")
	f.StringVar(&sendFlags.system, "system", "", "System preamble to send with the prompt")
	f.BoolVar(&sendFlags.noTools, "no-tools", false, "Do not offer the built-in toolset")
}

// builtinTools is the agent's standard toolset, offered whenever the
// effective snapshot allows tools.
func builtinTools() []capability.Tool {
	return []capability.Tool{
		{
			Name:        "run_shell",
			Description: "Run a shell command in the workspace and return its output",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string"},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        "read_file",
			Description: "Read a file from the workspace",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file in the workspace",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"path", "content"},
			},
		},
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	conn, err := eng.connection(sendFlags.connection)
	if err != nil {
		return err
	}

	req := capability.Request{
		Provider: conn.Provider,
		Model:    conn.Model,
		BaseURL:  conn.BaseURL,
		Override: conn.Capabilities,
		System:   sendFlags.system,
		Prompt:   strings.Join(args, " "),
	}
	if !sendFlags.noTools {
		req.Tools = builtinTools()
	}

	ctrl := eng.controller(conn.APIKey)
	resp, err := ctrl.Do(cmd.Context(), req)
	if err != nil {
		var negErr *capability.NegotiationError
		if errors.As(err, &negErr) {
			eng.logger.Error("negotiation failed",
				"trace_id", negErr.TraceID,
				"provider", negErr.Provider,
				"model", negErr.Model,
				"steps", len(negErr.Steps),
				"retries", negErr.Retries,
				"reason", negErr.Reason,
			)
		}
		return err
	}

	eng.logger.Info("request complete",
		"connection", conn.Name,
		"dialect", resp.Dialect,
		"streamed", resp.Streamed,
	)
	fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
	return nil
}
