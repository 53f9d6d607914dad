package main

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/orderlabs/order/internal/capability"
	"github.com/orderlabs/order/internal/config"
)

var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities",
	Aliases: []string{"caps"},
	Short:   "Inspect and manage learned provider capabilities",
}

var capsStatusFlags struct {
	connection string
}

var capsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective capabilities for each connection",
	RunE:  runCapsStatus,
}

var capsResetFlags struct {
	provider string
	model    string
}

var capsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget learned capabilities",
	Long: "Reset removes runtime capability records so the next request starts\n" +
		"from the static defaults. Without flags the whole cache is cleared;\n" +
		"--provider and --model narrow the scope.",
	RunE: runCapsReset,
}

func init() {
	capsStatusCmd.Flags().StringVarP(&capsStatusFlags.connection, "connection", "c", "", "Limit to one connection")

	f := capsResetCmd.Flags()
	f.StringVar(&capsResetFlags.provider, "provider", "", "Limit the reset to one provider")
	f.StringVar(&capsResetFlags.model, "model", "", "Limit the reset to one model (requires --provider)")

	capabilitiesCmd.AddCommand(capsStatusCmd)
	capabilitiesCmd.AddCommand(capsResetCmd)
}

func runCapsStatus(cmd *cobra.Command, _ []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	conns := eng.cfg.Connections
	if capsStatusFlags.connection != "" {
		conn, err := eng.connection(capsStatusFlags.connection)
		if err != nil {
			return err
		}
		conns = []config.Connection{conn}
	}
	if len(conns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No connections configured.")
		return nil
	}

	resolver := capability.NewResolver(eng.store, eng.logger)
	out := cmd.OutOrStdout()
	for i, conn := range conns {
		if i > 0 {
			fmt.Fprintln(out)
		}
		snap := resolver.CurrentEffective(conn.Provider, conn.Model, conn.BaseURL, conn.Capabilities)
		fmt.Fprintf(out, "Connection: %s (%s / %s)\n", conn.Name, conn.Provider, conn.Model)
		fmt.Fprintf(out, "  dialect:    %s\n", snap.Dialect)
		fmt.Fprintf(out, "  tools:      %s\n", onOff(snap.Tools))
		fmt.Fprintf(out, "  system:     %s\n", onOff(snap.SystemPreamble))
		fmt.Fprintf(out, "  streaming:  %s\n", onOff(snap.Streaming))
		fmt.Fprintf(out, "  confidence: %s\n", snap.Confidence)
		fmt.Fprintf(out, "  provenance: %s\n", snap.Provenance)
		if snap.Reason != "" {
			fmt.Fprintf(out, "  reason:     %s\n", snap.Reason)
		}
	}
	return nil
}

func runCapsReset(cmd *cobra.Command, _ []string) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}

	scope := capability.ScopeAll()
	if capsResetFlags.provider != "" {
		provider := capability.Provider(capsResetFlags.provider)
		if !capability.IsValidProvider(provider) {
			return fmt.Errorf("unknown provider %q", capsResetFlags.provider)
		}
		if capsResetFlags.model != "" {
			scope = capability.ScopeModel(provider, capsResetFlags.model)
		} else {
			scope = capability.ScopeProvider(provider)
		}
	} else if capsResetFlags.model != "" {
		return fmt.Errorf("--model requires --provider")
	}

	removed := eng.store.Reset(scope)
	eng.traces.Emit(capability.Event{
		TraceID: ulid.Make().String(),
		Time:    time.Now().UTC(),
		Kind:    capability.EventCacheReset,
		Detail:  map[string]any{"scope": scope.String(), "removed": removed},
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d capability record(s).\n", removed)
	return nil
}
