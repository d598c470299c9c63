package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/input"
)

func newTemplateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Creates the input workbook template if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			path := rt.cfg.Input.Path
			if output != "" {
				path = output
			}
			created, err := input.CreateTemplate(path, rt.cfg.Input.Column)
			if err != nil {
				return fmt.Errorf("create template: %w", err)
			}
			if !created {
				rt.logger.Info("Template already exists, leaving it untouched", zap.String("path", path))
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
				return nil
			}
			rt.logger.Info("Template created", zap.String("path", path), zap.String("column", rt.cfg.Input.Column))
			fmt.Fprintf(cmd.OutOrStdout(), "created %s: add one title per row under %q\n", path, rt.cfg.Input.Column)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "template path (default input.path)")
	return cmd
}
