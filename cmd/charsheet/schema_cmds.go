package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dlovans/charsheet/pkg/expr"
	"github.com/dlovans/charsheet/pkg/lint"
	"github.com/dlovans/charsheet/pkg/ruleset"
	"github.com/dlovans/charsheet/pkg/runtime"
)

var errChecksFailed = errors.New("checks failed")

func (a *app) normalizeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "normalize FILE",
		Short: "Print the canonical form of a ruleset schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(args[0])
			if err != nil {
				return err
			}
			schema := ruleset.Normalize(doc)
			switch format {
			case "json":
				return a.printJSON(schema)
			case "yaml":
				data, err := toYAML(schema)
				if err != nil {
					return fmt.Errorf("encode yaml: %w", err)
				}
				_, err = a.out.Write(data)
				return err
			default:
				return fmt.Errorf("unknown format %q (want json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check ruleset schemas for structural and referential errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]ruleset.ValidationResult, len(args))
			g, _ := errgroup.WithContext(cmd.Context())
			for i, path := range args {
				g.Go(func() error {
					doc, err := a.readDocument(path)
					if err != nil {
						return err
					}
					results[i] = ruleset.Validate(doc)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for i, path := range args {
				r := results[i]
				if r.Valid {
					fmt.Fprintf(a.out, "✓ %s\n", path)
					continue
				}
				failed++
				fmt.Fprintf(a.out, "✗ %s\n", path)
				for _, e := range r.Errors {
					fmt.Fprintf(a.out, "    %s\n", e)
				}
			}
			a.logger.Debug("validated schemas", zap.Int("files", len(args)), zap.Int("failed", failed))
			if failed > 0 {
				return fmt.Errorf("%d of %d schemas invalid: %w", failed, len(args), errChecksFailed)
			}
			return nil
		},
	}
}

func (a *app) lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint FILE",
		Short: "Report authoring hazards in a ruleset schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(args[0])
			if err != nil {
				return err
			}
			result := lint.Run(doc)
			if len(result.Issues) == 0 {
				fmt.Fprintln(a.out, "✓ No issues found")
				return nil
			}
			for _, issue := range result.Issues {
				icon := "⚠"
				switch issue.Severity {
				case "error":
					icon = "✗"
				case "info":
					icon = "ℹ"
				}
				location := ""
				if issue.Field != "" {
					location = fmt.Sprintf(" [field: %s]", issue.Field)
				}
				if issue.Rule != "" {
					location += fmt.Sprintf(" [rule: %s]", issue.Rule)
				}
				fmt.Fprintf(a.out, "%s %s%s: %s\n", icon, issue.Severity, location, issue.Message)
			}
			if !result.Valid {
				return errChecksFailed
			}
			return nil
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	var schemaPath, valuesPath string
	var sets []string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a sheet against a schema without touching the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readDocument(schemaPath)
			if err != nil {
				return err
			}
			values := map[string]any{}
			if valuesPath != "" {
				raw, err := a.readDocument(valuesPath)
				if err != nil {
					return err
				}
				m, ok := expr.AsMap(raw)
				if !ok {
					return fmt.Errorf("%s: values must be an object", valuesPath)
				}
				values = m
			}
			for _, kv := range sets {
				id, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("--set %q: want FIELD=VALUE", kv)
				}
				values[id] = parseScalar(v)
			}

			schema := ruleset.Normalize(doc)
			role := a.actorRole()
			result := runtime.Resolve(schema, values, role)
			return a.printJSON(runtime.Redact(schema, result, role))
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "ruleset schema file")
	cmd.Flags().StringVar(&valuesPath, "values", "", "field values file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "FIELD=VALUE override, repeatable")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
