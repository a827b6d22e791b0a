package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/importer"
)

var resumeSkipGeo bool

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused import job from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobID := args[0]

		env, err := initImportEnv(ctx, "import", resumeSkipGeo)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Store.GetJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "fetch job")
		}

		mapping, err := loadMapping(job.SourceName)
		if err != nil {
			return err
		}

		orch := importer.New(env.Store, env.Agent, env.Publisher, mapping,
			importer.WithSubmitter(cfg.Import.Submitter))

		zap.L().Info("resuming import job",
			zap.String("job_id", jobID),
			zap.String("source", job.SourceName),
		)
		if err := orch.Resume(ctx, jobID); err != nil {
			return eris.Wrap(err, "resume import job")
		}

		return printJob(ctx, env, jobID)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Request a running import job to pause at its next batch boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		orch := importer.New(st, nil, nil, nil)
		if err := orch.Pause(ctx, args[0]); err != nil {
			return eris.Wrap(err, "pause import job")
		}

		zap.L().Info("pause requested, the job stops at the next batch boundary",
			zap.String("job_id", args[0]),
		)
		return nil
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeSkipGeo, "skip-geocoding", false, "disable the address geocoding check")
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(pauseCmd)
}
