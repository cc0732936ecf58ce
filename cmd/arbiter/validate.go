// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/arbiter/pkg/catalog"
	"github.com/jllopis/arbiter/pkg/curve"
	"github.com/jllopis/arbiter/pkg/errors"
)

type validateResult struct {
	Files   []checkResult `json:"files"`
	Overall string        `json:"overall"`
}

type checkResult struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"` // "ok", "warn", "error"
	Sets      []string `json:"sets,omitempty"`
	Templates int      `json:"templates"`
	Message   string   `json:"message,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Load and validate action-set files",
		Long: `Loads every action-set file (directories are scanned one level deep)
and checks template structure. Curves that are not built in are reported as
warnings because they are resolved by the curve-miss strategy at runtime.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := validateFiles(catalog.NewLoader(), args)
			if a.flags.JSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printValidate(cmd.OutOrStdout(), result)
			}
			if result.Overall == "error" {
				return NewCLIError(
					errors.New(errors.CodeInvalidInput, "action set validation failed", nil),
					"fix the files marked as error above")
			}
			return nil
		},
	}
}

func validateFiles(loader *catalog.Loader, paths []string) validateResult {
	result := validateResult{Files: []checkResult{}, Overall: "ok"}
	for _, p := range paths {
		check := checkResult{Name: p, Status: "ok"}
		sets, err := loader.LoadPaths([]string{p})
		switch {
		case err != nil:
			check.Status = "error"
			check.Message = err.Error()
		case len(sets) == 0:
			check.Status = "warn"
			check.Message = "no action-set files found"
		default:
			var unknown []string
			for _, set := range sets {
				check.Sets = append(check.Sets, set.Name)
				check.Templates += len(set.Actions)
				for _, t := range set.Actions {
					for _, c := range t.Considerations {
						if _, ok := curve.Builtin(c.Curve); !ok {
							unknown = append(unknown, fmt.Sprintf("%s/%s", t.Name, c.Curve))
						}
					}
				}
			}
			if len(unknown) > 0 {
				check.Status = "warn"
				check.Message = fmt.Sprintf("curves not built in: %v", unknown)
			}
		}
		switch {
		case check.Status == "error":
			result.Overall = "error"
		case check.Status == "warn" && result.Overall == "ok":
			result.Overall = "warn"
		}
		result.Files = append(result.Files, check)
	}
	return result
}

func printValidate(w io.Writer, result validateResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tSETS\tTEMPLATES\tMESSAGE")
	for _, f := range result.Files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", f.Name, f.Status, len(f.Sets), f.Templates, f.Message)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\noverall: %s\n", result.Overall)
}
