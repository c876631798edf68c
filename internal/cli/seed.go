package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/garyjia/excise-workflow/internal/application/catalog"
)

func seedCmd(g *globals) *cobra.Command {
	var (
		file  string
		check bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a catalog document",
		Long: `Import roles, workflows, stages, permissions and transitions from a YAML
catalog document. Existing rows are matched by name and updated; nothing is
deleted. With --check the document is only validated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			doc, err := catalog.LoadDocument(file)
			if err != nil {
				return err
			}
			problems, err := doc.Check()
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				printProblems(out, problems)
				return fmt.Errorf("%s: %d problem(s)", file, len(problems))
			}
			if check {
				fmt.Fprintf(out, "%s %s is valid (%d workflows, %d roles)\n",
					color.New(color.FgGreen).Sprint("OK"), file, len(doc.Workflows), len(doc.Roles))
				return nil
			}

			s, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			rep, err := s.services.Catalog.Import(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s imported %s\n", color.New(color.FgGreen).Sprint("OK"), file)
			fmt.Fprintf(out, "  roles:       %d\n", rep.Roles)
			fmt.Fprintf(out, "  workflows:   %d\n", rep.Workflows)
			fmt.Fprintf(out, "  stages:      %d\n", rep.Stages)
			fmt.Fprintf(out, "  permissions: %d\n", rep.Permissions)
			fmt.Fprintf(out, "  transitions: %d\n", rep.Transitions)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML document")
	cmd.Flags().BoolVar(&check, "check", false, "validate without importing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printProblems(w io.Writer, problems []catalog.Problem) {
	bad := color.New(color.FgRed).Sprint("PROBLEM")
	for _, p := range problems {
		fmt.Fprintf(w, "%s %s\n", bad, p)
	}
}
