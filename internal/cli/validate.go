package cli

import (
	"errors"
	"fmt"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/loader"
	"github.com/cuecode/cuecode/internal/validate"
	"github.com/spf13/cobra"
)

func ValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate an OpenAPI document without storing it",
		RunE:  runValidate,
	}

	flags := cmd.Flags()
	flags.StringP("spec", "s", "", "OpenAPI document path")
	flags.String("base-url", "", "URL relative server URLs are resolved against")
	flags.Bool("skip-openapi-schema", false, "Skip libopenapi baseline validation")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if err := cfg.RequireSpec(); err != nil {
		return err
	}

	result, err := loader.LoadFile(cfg.Spec, loader.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return fmt.Errorf("loading spec: %w", err)
	}
	for _, w := range result.Warnings {
		cmd.PrintErrf("Warning: %s\n", w)
	}

	v := validate.New(
		validate.WithOpenAPISchema(cfg.Validation.OpenAPISchema),
		validate.WithLogger(a.logger),
	)
	err = v.Validate(result)

	out := cmd.OutOrStdout()
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		for _, violation := range verr.Violations {
			fmt.Fprintln(out, violation.String())
		}
		return fmt.Errorf("%d violation(s) found", len(verr.Violations))
	}
	if err != nil {
		return err
	}

	doc := result.Document
	fmt.Fprintf(out, "OpenAPI %s: %s v%s is valid\n", result.Version, doc.Info.Title, doc.Info.Version)
	fmt.Fprintf(out, "  Paths: %d\n", len(doc.Paths))
	fmt.Fprintf(out, "  Operations: %d\n", len(doc.Operations()))
	return nil
}
