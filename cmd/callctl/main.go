// Command callctl is an operator tool for the call agent: it runs the
// keyword triage offline, signs webhook payloads and drives a simulated
// call against a running server.
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"callagent/internal/telephony"
	"callagent/internal/triage"

	"github.com/spf13/cobra"
)

var jsonOutput bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "callctl",
		Short:         "Operator tooling for the medical call agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(newTriageCmd(), newSignCmd(), newSimulateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newTriageCmd() *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "triage <transcript>",
		Short: "Run the keyword engine on a transcript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := triage.NewRegistry()
			if err != nil {
				return err
			}
			engine := registry.Engine(locale)
			text := strings.Join(args, " ")

			analysis := engine.Analyze(text)
			if override, keywords := engine.ZeroLatencyOverride(text); override {
				analysis = engine.Override(keywords)
			}

			if jsonOutput {
				return printJSON(cmd, analysis)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "locale:    %s\n", engine.Locale())
			fmt.Fprintf(out, "intent:    %s (%.2f)\n", analysis.Intent, analysis.IntentConfidence)
			fmt.Fprintf(out, "priority:  %s\n", analysis.Priority)
			fmt.Fprintf(out, "severity:  %s\n", analysis.Severity)
			fmt.Fprintf(out, "emergency: %v %v\n", analysis.IsEmergency, analysis.Keywords)
			fmt.Fprintf(out, "transfer:  %v\n", analysis.RequiresTransfer())
			fmt.Fprintf(out, "reply:     %s\n", analysis.ReplyText)
			return nil
		},
	}
	cmd.Flags().StringVarP(&locale, "locale", "l", triage.DefaultLocale, "Keyword locale (en-US, ur-PK)")
	return cmd
}

func newSignCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "sign <url> [key=value ...]",
		Short: "Compute the webhook signature header for a form POST",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TWILIO_AUTH_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("--token or TWILIO_AUTH_TOKEN is required")
			}

			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			signature := telephony.Sign(token, args[0], params)

			if jsonOutput {
				return printJSON(cmd, map[string]string{
					"header":    telephony.SignatureHeader,
					"signature": signature,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", telephony.SignatureHeader, signature)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Auth token (defaults to TWILIO_AUTH_TOKEN)")
	return cmd
}

// parseParams turns key=value arguments into form values
func parseParams(args []string) (url.Values, error) {
	params := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", arg)
		}
		params.Add(key, value)
	}
	return params, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
