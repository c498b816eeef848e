package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atuld8/opskit/internal/incidents"
	"github.com/atuld8/opskit/internal/model"
	"github.com/atuld8/opskit/internal/populate"
	"github.com/atuld8/opskit/internal/tracker"
	"github.com/atuld8/opskit/internal/validate"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check incident assignees against the external tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			queryName, _ := cmd.Flags().GetString("query")
			incidentList, _ := cmd.Flags().GetString("incidents")
			policyFlag, _ := cmd.Flags().GetString("populate")
			details, _ := cmd.Flags().GetBool("details")

			if (queryName == "") == (incidentList == "") {
				return fmt.Errorf("%w: exactly one of --query or --incidents is required", model.ErrValidation)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if policyFlag == "" {
				policyFlag = cfg.PopulatePolicy
			}
			policy, err := populate.ParsePolicy(policyFlag)
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			log := newLogger("validate")
			trk := tracker.NewClient(cfg, newLogger("tracker"))
			source := incidents.NewSource(cfg, newLogger("incidents"))
			pop := populate.New(cfg, trk, os.Stdin, os.Stdout, newLogger("populate"))

			var records []model.IncidentRecord
			if queryName != "" {
				records, err = source.QueryByName(cmd.Context(), queryName)
			} else {
				records, err = source.QueryByNumbers(cmd.Context(), splitList(incidentList))
			}
			if err != nil {
				return err
			}

			v := validate.New(st.Accounts(), trk, pop, policy, log)
			results, err := v.Validate(cmd.Context(), records)
			if err != nil {
				return err
			}
			if details {
				return validate.WriteDetails(os.Stdout, results)
			}
			return validate.WriteTable(os.Stdout, results)
		},
	}
	cmd.Flags().String("query", "", "named server-side query to run")
	cmd.Flags().String("incidents", "", "comma-separated incident numbers")
	cmd.Flags().String("populate", "", "policy for unknown users: auto, interactive, skip or fail")
	cmd.Flags().Bool("details", false, "print every assignee check instead of the summary table")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
