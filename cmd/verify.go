package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityroots/resource-cli/internal/mapper"
	"github.com/communityroots/resource-cli/internal/model"
)

var (
	verifySource  string
	verifyRecord  string
	verifyRunType string
	verifySkipGeo bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a single candidate resource",
	Long:  "Normalizes one raw record through the source's mapping config, runs the full verification check suite against it, and prints the scored result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mapping, err := loadMapping(verifySource)
		if err != nil {
			return err
		}

		raw, err := readRawRecord(verifyRecord)
		if err != nil {
			return err
		}

		cand, err := mapper.Normalize(raw, mapping)
		if err != nil {
			return eris.Wrap(err, "normalize record")
		}

		runType := model.RunType(verifyRunType)
		switch runType {
		case model.RunTypeInitial, model.RunTypePeriodic, model.RunTypeTriggered:
		default:
			return eris.Errorf("invalid run type %q", verifyRunType)
		}

		env, err := initImportEnv(ctx, "verify", verifySkipGeo)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Agent.Verify(ctx, cand, runType)
		if err != nil {
			return eris.Wrap(err, "verify candidate")
		}

		zap.L().Info("candidate verified",
			zap.String("name", cand.Name),
			zap.Float64("score", result.OverallScore),
			zap.String("decision", string(result.Decision)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// readRawRecord loads one raw record from a JSON file, or from stdin when
// path is "-".
func readRawRecord(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "read record file")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "parse record JSON")
	}
	return raw, nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifySource, "source", "", "source mapping name or path (required)")
	verifyCmd.Flags().StringVar(&verifyRecord, "record", "", "raw record JSON file, or - for stdin (required)")
	verifyCmd.Flags().StringVar(&verifyRunType, "run-type", string(model.RunTypeInitial), "verification run type (initial, periodic, triggered)")
	verifyCmd.Flags().BoolVar(&verifySkipGeo, "skip-geocoding", false, "disable the address geocoding check")
	_ = verifyCmd.MarkFlagRequired("source")
	_ = verifyCmd.MarkFlagRequired("record")
	rootCmd.AddCommand(verifyCmd)
}
