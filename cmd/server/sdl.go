package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"

	"harmony-graphql/internal/serverapp"
)

func newSDLCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "sdl",
		Short: "Print the GraphQL schema generated from the model file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			printed, err := serverapp.SchemaSDL(cfg)
			if err != nil {
				return err
			}
			if !raw {
				if printed, err = formatSDL(printed); err != nil {
					return err
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), printed)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the schema as generated, without reformatting")
	return cmd
}

// formatSDL reprints a schema document with gqlparser's formatter.
func formatSDL(sdl string) (string, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return "", fmt.Errorf("failed to parse generated schema: %w", err)
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchemaDocument(doc)
	return buf.String(), nil
}
