// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/arbiter/pkg/curve"
)

type curveSamples struct {
	Name    string    `json:"name"`
	Inputs  []float64 `json:"inputs"`
	Outputs []float64 `json:"outputs"`
}

func newCurvesCmd(a *app) *cobra.Command {
	var points int
	cmd := &cobra.Command{
		Use:   "curves [NAME...]",
		Short: "List built-in response curves with sample values",
		Long: `Prints every built-in curve, or only the named ones, sampled at evenly
spaced inputs in [0,1]. Any built-in X also resolves as AntiX.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if points < 2 {
				return NewInvalidArgumentError("--points", "must be at least 2")
			}
			names := args
			if len(names) == 0 {
				names = curve.BuiltinNames()
			}
			samples, err := sampleCurves(names, points)
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(samples)
			}
			printCurves(cmd.OutOrStdout(), samples)
			return nil
		},
	}
	cmd.Flags().IntVar(&points, "points", 5, "Number of evenly spaced sample points")
	return cmd
}

func sampleCurves(names []string, points int) ([]curveSamples, error) {
	out := make([]curveSamples, 0, len(names))
	for _, name := range names {
		s, ok := curve.Builtin(name)
		if !ok {
			return nil, NewNotFoundError("curve", name)
		}
		cs := curveSamples{Name: name}
		for i := 0; i < points; i++ {
			t := float64(i) / float64(points-1)
			cs.Inputs = append(cs.Inputs, t)
			cs.Outputs = append(cs.Outputs, s.Sample(t))
		}
		out = append(out, cs)
	}
	return out, nil
}

func printCurves(w io.Writer, samples []curveSamples) {
	if len(samples) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	header := []string{"NAME"}
	for _, t := range samples[0].Inputs {
		header = append(header, fmt.Sprintf("t=%.2f", t))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, s := range samples {
		row := []string{s.Name}
		for _, v := range s.Outputs {
			row = append(row, fmt.Sprintf("%.3f", v))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	_ = tw.Flush()
}
