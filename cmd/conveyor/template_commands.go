package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"conveyor/internal/template"
)

func newTemplateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect matching templates",
	}
	cmd.AddCommand(newTemplateListCommand(ctx))
	cmd.AddCommand(newTemplateValidateCommand(ctx))
	return cmd
}

func newTemplateListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates in matching order",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			templates, err := store.Templates(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(templates))
			for _, tpl := range templates {
				state := "active"
				if tpl.IsDraft {
					state = "draft"
				} else if !tpl.IsActive {
					state = "inactive"
				}
				rules := len(tpl.ExactMatches) + len(tpl.Keywords) + len(tpl.Patterns)
				rows = append(rows, []string{
					strconv.FormatInt(tpl.ID, 10),
					tpl.Name,
					state,
					strconv.Itoa(rules),
					strings.Join(tpl.Keywords, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "State", "Rules", "Keywords"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newTemplateValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every template's match patterns compile",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			templates, err := store.Templates(cmd.Context())
			if err != nil {
				return err
			}

			invalid := 0
			for _, tpl := range templates {
				if err := template.Validate(tpl); err != nil {
					invalid++
					fmt.Fprintf(cmd.OutOrStdout(), "template %d (%s): %v\n", tpl.ID, tpl.Name, err)
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d template(s) have invalid patterns", invalid)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d template(s) ok\n", len(templates))
			return nil
		},
	}
}
