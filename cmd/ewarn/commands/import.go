package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ewarn/internal/detector"
	"ewarn/internal/feed"
	"ewarn/internal/logger"
	"ewarn/internal/models"
	"ewarn/internal/storage"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load feed rows into Postgres",
	Long: `Decodes flat surveillance rows (the REST feed format) and upserts them
into the Postgres record table used by the postgres source.

Example:
  ewarn import --disease dbd --input rows.json`,
	RunE: runImport,
}

var (
	importDisease string
	importInput   string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDisease, "disease", "", "disease (malaria|dbd|leptospirosis)")
	importCmd.Flags().StringVar(&importInput, "input", "", "rows file, - for stdin")
	importCmd.MarkFlagRequired("disease")
	importCmd.MarkFlagRequired("input")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required for import")
	}

	fields, err := feed.MergeFieldMaps(cfg.Feed.FieldMaps)
	if err != nil {
		return err
	}

	disease, records, err := decodeImport(fields, importDisease, importInput)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	pg, err := storage.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}

	return importRecords(ctx, cmd.OutOrStdout(), pg, disease, records)
}

func importRecords(ctx context.Context, w io.Writer, store storage.RecordStore, disease models.Disease, records []models.MonthlyRecord) error {
	saved, err := store.SaveRecords(ctx, disease, records)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "imported %d of %d %s record(s)\n", saved, len(records), disease)
	return nil
}

// decodeImport reads and decodes the rows file, logging rows that are dropped
func decodeImport(fields map[models.Disease]feed.FieldMap, rawDisease, path string) (models.Disease, []models.MonthlyRecord, error) {
	disease, ok := models.ParseDisease(rawDisease)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", detector.ErrUnknownDisease, rawDisease)
	}
	fm, ok := fields[disease]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", feed.ErrUnsupportedDisease, disease)
	}

	data, err := readInput(path)
	if err != nil {
		return "", nil, err
	}
	rows, err := feed.ParseRows(data)
	if err != nil {
		return "", nil, err
	}

	records, rowErrs := fm.DecodeRows(disease, rows)
	log := logger.WithDisease("cli", string(disease))
	for _, e := range rowErrs {
		log.Warn().Err(e.Err).Int("index", e.Index).Msg("skipping undecodable row")
	}
	return disease, records, nil
}
