package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"wellness-agent/internal/risk"
)

// ClassifyResult is the JSON shape of classify.
type ClassifyResult struct {
	Level     string   `json:"level"`
	Intensity int      `json:"intensity"`
	Triggers  []string `json:"triggers"`
	HighRisk  bool     `json:"highRisk"`
}

type classifyOptions struct {
	lexicon string
	history []string
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify <message>...",
		Short: "Classify a message with a lexicon (built-in by default)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(rootOpts, opts, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.lexicon, "lexicon", "", "lexicon YAML file")
	cmd.Flags().StringArrayVar(&opts.history, "history", nil, "earlier user message, oldest first (repeatable)")
	return cmd
}

func runClassify(rootOpts *RootOptions, opts *classifyOptions, text string, w io.Writer) error {
	lex, err := loadLexicon(opts.lexicon)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	a, err := risk.NewAnalyzer(lex)
	if err != nil {
		return err
	}
	c := a.Classify(text, opts.history)
	res := ClassifyResult{
		Level:     c.Level.String(),
		Intensity: c.Intensity,
		Triggers:  triggerNames(c.Triggers),
		HighRisk:  c.HighRisk,
	}

	if rootOpts.Format == "json" {
		return json.NewEncoder(w).Encode(res)
	}
	triggers := strings.Join(res.Triggers, ",")
	if triggers == "" {
		triggers = "none"
	}
	fmt.Fprintf(w, "level: %s\nintensity: %d\ntriggers: %s\nhigh_risk: %t\n", res.Level, res.Intensity, triggers, res.HighRisk)
	return nil
}
