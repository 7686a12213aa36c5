package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestClassify_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	cases := map[string][]string{
		"classify_critical": {"classify", "I want to end it all"},
		"classify_high":     {"classify", "I'm really stressed and anxious"},
		"classify_low":      {"classify", "what a lovely day"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := execute(t, args...)
			require.NoError(t, err)
			g.Assert(t, name, []byte(out))
		})
	}
}

func TestClassify_JSONWithHistory(t *testing.T) {
	out, err := execute(t, "--format", "json", "classify",
		"--history", "work has me stressed", "--history", "still stressed",
		"I'm stressed again")
	require.NoError(t, err)

	var res ClassifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, ClassifyResult{Level: "MEDIUM", Intensity: 6, Triggers: []string{"STRESS"}}, res)
}

func TestValidate_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 3
intensity: {baseline: 5, amplified: 8, diminished: 3}
categories:
  STRESS: [stressed]
high_risk:
  category: SELF_HARM
  phrases: [end it all]
levels:
  - {level: MEDIUM, min_triggers: 1, min_intensity: 5}
`), 0o600))

	out, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)
	var res ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Valid)
	require.Equal(t, 3, res.Version)
	require.Equal(t, []string{"SELF_HARM", "STRESS"}, res.Categories)
	require.Equal(t, 1, res.Rules)
}

func TestValidate_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\ncategories: {}\n"), 0o600))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	require.Contains(t, out, "invalid:")
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "yaml", "classify", "hi")
	require.Error(t, err)
}
