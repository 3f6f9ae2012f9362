// Package cli implements replctl, the operator tool for checking policies,
// progress output and dataset overlaps offline.
package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stanstork/stratum-replicator/internal/conflict"
	"github.com/stanstork/stratum-replicator/internal/jobbuilder"
	"github.com/stanstork/stratum-replicator/internal/models"
	"github.com/stanstork/stratum-replicator/internal/progress"
	"github.com/stanstork/stratum-replicator/internal/snapshot"
	"gopkg.in/yaml.v3"
)

// BuildCLI assembles the replctl command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "replctl",
		Short:         "Inspect replication policies offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildProgressCommand())
	rootCmd.AddCommand(buildConflictsCommand())
	rootCmd.AddCommand(buildAgeCommand())

	return rootCmd
}

func buildValidateCommand() *cobra.Command {
	var policyFile, sourceFile, targetFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build the job descriptors of a policy and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p models.Policy
			if err := readYAML(policyFile, &p); err != nil {
				return err
			}
			typ, err := models.ParseReplicationType(string(p.Type))
			if err != nil {
				return err
			}
			p.Type = typ

			var src, tgt models.Cluster
			if err := readYAML(sourceFile, &src); err != nil {
				return err
			}
			if err := readYAML(targetFile, &tgt); err != nil {
				return err
			}

			jobs, err := jobbuilder.BuildWithClusters(p, src, tgt)
			if err != nil {
				return errors.Wrapf(err, "policy %s is invalid", p.Name)
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVarP(&policyFile, "file", "f", "", "YAML file containing the policy")
	cmd.Flags().StringVar(&sourceFile, "source-cluster-file", "", "YAML file containing the source cluster")
	cmd.Flags().StringVar(&targetFile, "target-cluster-file", "", "YAML file containing the target cluster")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("source-cluster-file")
	_ = cmd.MarkFlagRequired("target-cluster-file")

	return cmd
}

func buildProgressCommand() *cobra.Command {
	var kind, file, action string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Print the progress map extracted from copy counters or a replication log",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", file)
			}

			var p progress.Progress
			switch kind {
			case "counters":
				var report progress.JobReport
				if err := json.Unmarshal(data, &report); err != nil {
					return errors.Wrapf(err, "failed to decode job report %s", file)
				}
				p = progress.FromCounters(report, time.Now())
			case "log":
				p, err = progress.ParseReplLog(readLines(data), progress.ReplAction(strings.ToUpper(action)))
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown progress kind %q, want counters or log", kind)
			}
			return printJSON(cmd.OutOrStdout(), p.Map())
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "counters", "Input kind: counters or log")
	cmd.Flags().StringVar(&file, "file", "", "File holding the job report (JSON) or the log output")
	cmd.Flags().StringVar(&action, "action", string(progress.ActionExport), "Log action: EXPORT or IMPORT")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func buildConflictsCommand() *cobra.Command {
	var typ, candidate string
	var existing []string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check a candidate source dataset against the targets of active policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := models.ParseReplicationType(typ)
			if err != nil {
				return err
			}
			active := make([]models.ActiveDataset, 0, len(existing))
			for _, ds := range existing {
				active = append(active, models.ActiveDataset{Type: rt, TargetDataset: strings.TrimSpace(ds)})
			}
			cand := models.ActiveDataset{Policy: "candidate", Type: rt, SourceDataset: candidate}
			if err := conflict.Find(cand, active); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no conflict")
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(models.ReplicationTypeFS), "Replication type: FS or HIVE")
	cmd.Flags().StringVar(&candidate, "candidate", "", "Candidate dataset")
	cmd.Flags().StringSliceVar(&existing, "existing", nil, "Comma-separated target datasets of active policies")
	_ = cmd.MarkFlagRequired("candidate")

	return cmd
}

func buildAgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "age <expression>",
		Short: "Print a snapshot age expression such as days(3) in milliseconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := snapshot.AgeMillis(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ms)
			return nil
		},
	}
}

func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

func readLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
