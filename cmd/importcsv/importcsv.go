// Package importcsv implements the import subcommand: load a CSV file and
// run the bulk import pipeline against the configured database, without
// going through the HTTP API.
package importcsv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leadboard/leadboard-go/internal/bulk"
	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/datastore"
	"github.com/leadboard/leadboard-go/internal/jobqueue"
	"github.com/leadboard/leadboard-go/internal/logging"
)

type options struct {
	organizationID uint
	moduleType     string
	actorID        uint
}

// Command creates the import command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "import [input.csv]",
		Short: "Import records from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, opts, args[0])
		},
	}

	cmd.Flags().UintVar(&opts.organizationID, "org", uint(viper.GetUint32("import.org")), "Organization id to import into")
	cmd.Flags().StringVar(&opts.moduleType, "module", "LEAD", "Module type (LEAD or REFERRAL)")
	cmd.Flags().UintVar(&opts.actorID, "actor", 0, "Member id recorded as the import actor")

	return cmd
}

func run(settings *conf.Settings, opts *options, path string) error {
	logging.Init()
	logger := logging.ForService("import")

	module := datastore.ModuleType(strings.ToUpper(opts.moduleType))
	if module != datastore.ModuleLead && module != datastore.ModuleReferral {
		return fmt.Errorf("module must be LEAD or REFERRAL, got %q", opts.moduleType)
	}
	if opts.organizationID == 0 {
		return fmt.Errorf("--org is required")
	}

	rows, err := readRows(path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s contains no data rows", path)
	}

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	action := bulk.NewImportAction(store, nil, nil)
	result, err := action.Execute(context.Background(), &bulk.ImportInput{
		OrganizationID: opts.organizationID,
		ModuleType:     module,
		Rows:           rows,
		ActorID:        opts.actorID,
	}, func(p jobqueue.Progress) {
		logger.Info("import progress", "percent", p.Percent)
	})
	if err != nil {
		return err
	}

	tally := result.(*bulk.ImportResult)
	fmt.Printf("Imported %d records (%d new options) into organization %d\n",
		tally.Imported, tally.NewOptions, opts.organizationID)
	return nil
}

// readRows parses the CSV into header-keyed row maps. The first line is the
// header; short rows are padded with empties by the csv package rules.
func readRows(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var rows []map[string]string
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", len(rows)+2, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
