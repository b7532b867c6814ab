package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ewarn/internal/alerts"
	"ewarn/internal/config"
	"ewarn/internal/detector"
	"ewarn/internal/models"
	"ewarn/internal/processor"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the active alert rules",
	Long: `Prints the built-in rule sets merged with the configured rules file.
The YAML output can be edited and used as a rules file.

Example:
  ewarn rules
  ewarn rules --disease dbd --format yaml`,
	RunE: runRules,
}

var (
	rulesDisease string
	rulesFormat  string
)

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVar(&rulesDisease, "disease", "", "only this disease")
	rulesCmd.Flags().StringVar(&rulesFormat, "format", "yaml", "output format (yaml|json)")
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	sets, err := activeRuleSets(cfg, rulesDisease)
	if err != nil {
		return err
	}
	return printRuleSets(cmd.OutOrStdout(), sets, rulesFormat)
}

func activeRuleSets(cfg *config.Config, only string) ([]alerts.RuleSet, error) {
	engine, err := processor.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	diseases := engine.Diseases()
	if only != "" {
		d, ok := models.ParseDisease(only)
		if !ok {
			return nil, fmt.Errorf("%w: %q", detector.ErrUnknownDisease, only)
		}
		diseases = []models.Disease{d}
	}

	sets := make([]alerts.RuleSet, 0, len(diseases))
	for _, d := range diseases {
		set, ok := engine.RuleSet(d)
		if !ok {
			return nil, fmt.Errorf("%w: %s", detector.ErrUnknownDisease, d)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func printRuleSets(w io.Writer, sets []alerts.RuleSet, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]alerts.RuleSet{"rule_sets": sets}); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sets)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
