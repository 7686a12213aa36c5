package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wellness-agent/internal/domain"
	"wellness-agent/internal/risk"
)

// ValidationResult is the JSON shape of validate.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Version    int      `json:"version,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Rules      int      `json:"rules,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <lexicon.yaml>",
		Short: "Parse and validate a lexicon file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd.OutOrStdout())
		},
	}
}

func runValidate(opts *RootOptions, path string, w io.Writer) error {
	lex, err := loadLexicon(path)
	res := ValidationResult{Valid: err == nil}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Version = lex.Version
		res.Rules = len(lex.Rules())
		for _, c := range lex.Categories() {
			res.Categories = append(res.Categories, string(c))
		}
	}

	if opts.Format == "json" {
		if encErr := json.NewEncoder(w).Encode(res); encErr != nil {
			return encErr
		}
	} else if res.Valid {
		fmt.Fprintf(w, "valid: version %d, %d categories, %d level rules\n", res.Version, len(res.Categories), res.Rules)
		fmt.Fprintf(w, "categories: %s\n", strings.Join(res.Categories, ", "))
	} else {
		fmt.Fprintf(w, "invalid: %s\n", res.Error)
	}

	if err != nil {
		return fmt.Errorf("lexicon %s is invalid", path)
	}
	return nil
}

// loadLexicon reads path, or returns the built-in table when path is empty.
func loadLexicon(path string) (*risk.Lexicon, error) {
	if path == "" {
		return risk.DefaultLexicon(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return risk.ParseLexicon(data)
}

func triggerNames(ts []domain.TriggerCategory) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}
