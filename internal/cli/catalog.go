package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

func catalogCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the workflow catalog",
	}
	cmd.AddCommand(catalogListCmd(g))
	cmd.AddCommand(catalogShowCmd(g))
	return cmd
}

func catalogListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			workflows, err := s.services.Catalog.ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(workflows) == 0 {
				fmt.Fprintln(out, "No workflows. Import one with: excisectl seed -f <file>")
				return nil
			}
			for _, wf := range workflows {
				fmt.Fprintf(out, "%4d  %s\n", wf.ID, wf.Name)
			}
			return nil
		},
	}
}

func catalogShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow>",
		Short: "Show the stages and transitions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			wf, err := s.services.Catalog.GetWorkflowByName(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := s.services.Catalog.Snapshot(ctx, wf.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSnapshot(out, snap)

			problems, err := s.services.Catalog.Check(ctx, wf.ID)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				fmt.Fprintln(out)
				printProblems(out, problems)
			}
			return nil
		},
	}
}

func printSnapshot(w io.Writer, snap *domainwf.Snapshot) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintf(w, "%s (#%d)\n", bold.Sprint(snap.Workflow.Name), snap.Workflow.ID)
	if snap.Workflow.Description != "" {
		fmt.Fprintf(w, "  %s\n", dim.Sprint(snap.Workflow.Description))
	}
	fmt.Fprintln(w)

	for _, st := range snap.Stages {
		marker := " "
		switch {
		case st.IsInitial:
			marker = color.New(color.FgGreen).Sprint("*")
		case st.IsFinal:
			marker = color.New(color.FgBlue).Sprint("#")
		}

		var roles []string
		for _, p := range snap.StagePermissions(st.ID) {
			if !p.CanProcess {
				continue
			}
			if r, ok := snap.Role(p.RoleID); ok {
				roles = append(roles, r.Name)
			}
		}
		processors := dim.Sprint("(nobody)")
		if len(roles) > 0 {
			processors = strings.Join(roles, ", ")
		}
		fmt.Fprintf(w, "%s %-28s %s\n", marker, st.Name, processors)

		for _, t := range snap.Outgoing(st.ID) {
			to := fmt.Sprintf("#%d", t.ToStageID)
			if target, ok := snap.Stage(t.ToStageID); ok {
				to = target.Name
			}
			fmt.Fprintf(w, "    -> %-25s %s\n", to, formatCondition(t.Condition))
		}
	}
}

// formatCondition renders a guard as sorted key=value pairs
func formatCondition(cond map[string]any) string {
	if len(cond) == 0 {
		return ""
	}
	keys := make([]string, 0, len(cond))
	for k := range cond {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, cond[k]))
	}
	return strings.Join(parts, " ")
}
