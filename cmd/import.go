package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/fetcher"
	"github.com/communityroots/resource-cli/internal/importer"
	"github.com/communityroots/resource-cli/internal/mapper"
	"github.com/communityroots/resource-cli/internal/model"
)

var (
	importSource    string
	importFile      string
	importState     string
	importBatchSize int
	importLevel     string
	importSkipGeo   bool
	importDryRun    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a source feed as a new job",
	Long:  "Fetches a source feed, filters and persists its records as an import job, and runs the job: normalize, verify, and submit each batch to the platform.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mapping, err := loadMapping(importSource)
		if err != nil {
			return err
		}

		source := importFile
		if source == "" {
			return eris.New("--file is required")
		}

		records, err := fetcher.ReadRecords(ctx, source)
		if err != nil {
			return eris.Wrap(err, "read source records")
		}
		if importState != "" {
			before := len(records)
			records = filterByState(records, mapping, importState)
			zap.L().Info("state filter applied",
				zap.String("state", importState),
				zap.Int("before", before),
				zap.Int("after", len(records)),
			)
		}
		if len(records) == 0 {
			return eris.New("source feed contains no matching records")
		}

		batchSize := importBatchSize
		if batchSize == 0 {
			batchSize = cfg.Import.BatchSize
		}

		if importDryRun {
			est := importer.EstimateRun(len(records), batchSize)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(est)
		}

		env, err := initImportEnv(ctx, "import", importSkipGeo)
		if err != nil {
			return err
		}
		defer env.Close()

		jobCfg := model.JobConfig{
			BatchSize:     batchSize,
			SkipGeocoding: importSkipGeo,
			State:         strings.ToUpper(importState),
			SourceFile:    source,
		}
		if importLevel != "" {
			jobCfg.LevelOverride = model.VerificationLevel(importLevel)
		}

		orch := importer.New(env.Store, env.Agent, env.Publisher, mapping,
			importer.WithSubmitter(cfg.Import.Submitter))

		job, err := orch.CreateJob(ctx, jobCfg, records)
		if err != nil {
			return eris.Wrap(err, "create import job")
		}
		zap.L().Info("import job created",
			zap.String("job_id", job.ID),
			zap.String("source", mapping.SourceName),
			zap.Int("records", len(records)),
		)

		if err := orch.Run(ctx, job.ID); err != nil {
			return eris.Wrap(err, "run import job")
		}

		return printJob(ctx, env, job.ID)
	},
}

// loadMapping resolves a per-source mapping config. A name containing a path
// separator or extension is treated as a literal path; otherwise it resolves
// to <mapping_dir>/<name>.yaml.
func loadMapping(name string) (*mapper.MappingConfig, error) {
	if name == "" {
		return nil, eris.New("--source is required")
	}
	path := name
	if !strings.ContainsAny(name, "/\\") && filepath.Ext(name) == "" {
		path = filepath.Join(cfg.Import.MappingDir, name+".yaml")
	}
	return mapper.LoadMappingConfig(path)
}

// filterByState keeps records whose mapped state field equals the given
// two-letter code, case-insensitively. Records with no resolvable state are
// kept so normalization can report them instead of silently dropping them.
func filterByState(records []map[string]any, mapping *mapper.MappingConfig, state string) []map[string]any {
	want := strings.ToUpper(strings.TrimSpace(state))
	kept := records[:0]
	for _, raw := range records {
		val, ok := mapper.RawValue(raw, mapping, "state")
		if !ok {
			kept = append(kept, raw)
			continue
		}
		got := strings.ToUpper(strings.TrimSpace(fmt.Sprintf("%v", val)))
		if got == want {
			kept = append(kept, raw)
		}
	}
	return kept
}

// printJob fetches the job's final state and writes it as indented JSON.
func printJob(ctx context.Context, env *importEnv, jobID string) error {
	job, err := env.Store.GetJob(ctx, jobID)
	if err != nil {
		return eris.Wrap(err, "fetch job summary")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "source mapping name or path (required)")
	importCmd.Flags().StringVar(&importFile, "file", "", "feed path or URL (csv, json, xlsx, zip; required)")
	importCmd.Flags().StringVar(&importState, "state", "", "keep only records in this state (two-letter code)")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "records per batch (default from config)")
	importCmd.Flags().StringVar(&importLevel, "level", "", "override the source's verification level (L1, L2, L3)")
	importCmd.Flags().BoolVar(&importSkipGeo, "skip-geocoding", false, "disable the address geocoding check")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "estimate the run without creating a job")
	_ = importCmd.MarkFlagRequired("source")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
