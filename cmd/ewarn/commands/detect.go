package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ewarn/internal/alerts"
	"ewarn/internal/config"
	"ewarn/internal/detector"
	"ewarn/internal/handlers"
	"ewarn/internal/logger"
	"ewarn/internal/models"
	"ewarn/internal/processor"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect warnings for one disease",
	Long: `Runs the alert rules once and prints the warnings.

Records come from --input (a JSON file, or - for stdin) or, without --input,
from the configured record source. The input accepts the same body as
POST /api/v1/warnings/{disease}/detect.

Example:
  ewarn detect --disease dbd --input records.json --month 1 --year 2024
  ewarn detect --disease malaria --output text`,
	RunE: runDetect,
}

var (
	detectDisease string
	detectInput   string
	detectMonth   int
	detectYear    int
	detectFresh   bool
	detectOutput  string
)

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectDisease, "disease", "", "disease (malaria|dbd|leptospirosis)")
	detectCmd.Flags().StringVar(&detectInput, "input", "", "records file, - for stdin")
	detectCmd.Flags().IntVar(&detectMonth, "month", 0, "latest actual month (overrides the source)")
	detectCmd.Flags().IntVar(&detectYear, "year", 0, "latest actual year (overrides the source)")
	detectCmd.Flags().BoolVar(&detectFresh, "fresh", false, "bypass the record cache")
	detectCmd.Flags().StringVar(&detectOutput, "output", "json", "output format (json|text)")
	detectCmd.MarkFlagRequired("disease")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	disease, ok := models.ParseDisease(detectDisease)
	if !ok {
		return fmt.Errorf("%w: %q", detector.ErrUnknownDisease, detectDisease)
	}

	reference, err := flagPeriod(detectMonth, detectYear)
	if err != nil {
		return err
	}

	engine, err := processor.NewEngine(cfg)
	if err != nil {
		return err
	}

	var batch *models.WarningBatch
	if detectInput != "" {
		batch, err = detectFromFile(disease, reference, detector.New(engine, nil))
	} else {
		batch, err = detectFromSource(commandContext(cmd), disease, reference, cfg, engine)
	}
	if err != nil {
		return err
	}

	return printWarnings(cmd.OutOrStdout(), batch, detectOutput)
}

func detectFromFile(disease models.Disease, reference *models.Period, d *detector.Detector) (*models.WarningBatch, error) {
	data, err := readInput(detectInput)
	if err != nil {
		return nil, err
	}

	req, err := handlers.ParseDetectBody(data)
	if err != nil {
		return nil, err
	}
	if reference == nil {
		reference = req.LatestActualPeriod
	}

	records, result := handlers.ValidateRecords(disease, req.Records)
	if result.Rejected > 0 {
		log := logger.WithDisease("cli", string(disease))
		for _, re := range result.Errors {
			log.Warn().Int("index", re.Index).Str("region", re.Region).Str("error", re.Error).Msg("skipping invalid record")
		}
	}

	return d.Evaluate(disease, records, reference, detector.TriggerCLI)
}

func detectFromSource(ctx context.Context, disease models.Disease, reference *models.Period, cfg *config.Config, engine alerts.AlertEngine) (*models.WarningBatch, error) {
	backends, err := processor.OpenBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer backends.Close()

	return detector.New(engine, backends.Source).Run(ctx, detector.Request{
		Disease:   disease,
		Reference: reference,
		Fresh:     detectFresh,
		Trigger:   detector.TriggerCLI,
	})
}

// flagPeriod builds a period from --month/--year. Both or neither must be set.
func flagPeriod(month, year int) (*models.Period, error) {
	if month == 0 && year == 0 {
		return nil, nil
	}
	p := models.Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printWarnings(w io.Writer, batch *models.WarningBatch, format string) error {
	resp := handlers.NewWarningsResponse(batch)

	switch format {
	case "text":
		if resp.Reference == nil {
			fmt.Fprintf(w, "%s: no actual data yet\n", batch.Disease.DisplayName())
			return nil
		}
		fmt.Fprintf(w, "%s: %d warning(s) after %s %d\n",
			batch.Disease.DisplayName(), resp.Summary.Total, resp.Reference.MonthName(), resp.Reference.Year)
		for _, v := range resp.Warnings {
			fmt.Fprintf(w, "  %s\n", v.Message)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
