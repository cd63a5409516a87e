package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/templates"
)

func newTemplatesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"tpl"},
		Short:   "Manage dashboard templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newTemplatesListCmd(c),
		newTemplatesBootstrapCmd(c),
		newTemplatesExportCmd(c),
		newTemplatesImportCmd(c),
		newTemplatesDuplicateCmd(c),
		newTemplatesDeleteCmd(c),
		newTemplatesToggleCmd(c),
	)
	return cmd
}

// withRepository opens the template database for the duration of fn.
func (c *cli) withRepository(fn func(repo *templates.Repository) error) error {
	store, repo, err := openRepository(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(repo)
}

func parseTemplateID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid template id %q", model.ErrInvalid, arg)
	}
	return id, nil
}

func newTemplatesListCmd(c *cli) *cobra.Command {
	var (
		query  string
		status string
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepository(func(repo *templates.Repository) error {
				rows, err := repo.Search(cmd.Context(), templates.Filter{
					Text:   query,
					Status: templates.StatusFilter(status),
				})
				if err != nil {
					return err
				}
				switch output {
				case "json":
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if rows == nil {
						rows = []model.Template{}
					}
					return enc.Encode(rows)
				case "table", "":
					fmt.Fprintln(cmd.OutOrStdout(), renderTemplateTable(rows))
					return nil
				}
				return fmt.Errorf("unknown output %q: want table or json", output)
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive name/description filter")
	cmd.Flags().StringVar(&status, "status", "all", "filter by status: all, active or inactive")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func renderTemplateTable(rows []model.Template) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	dim := cell.Foreground(lipgloss.Color("240"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "NAME", "ACTIVE", "LAYOUT", "REFRESH", "CHARTS", "UPDATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case row >= 0 && row < len(rows) && !rows[row].IsActive:
				return dim
			}
			return cell
		})

	for _, r := range rows {
		active := "yes"
		if !r.IsActive {
			active = "no"
		}
		t.Row(
			strconv.FormatInt(r.ID, 10),
			r.Name,
			active,
			string(r.Config.Layout),
			fmt.Sprintf("%dms", r.Config.RefreshIntervalMs),
			strconv.Itoa(len(r.ComponentKinds())),
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return t.String()
}

func newTemplatesBootstrapCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Insert the built-in templates into an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepository(func(repo *templates.Repository) error {
				n, err := repo.BootstrapDefaults(cmd.Context())
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "templates already present; nothing inserted")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted %d built-in templates\n", n)
				return nil
			})
		},
	}
}

func newTemplatesExportCmd(c *cli) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every template as YAML, JSON or TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" && output != "" && output != "-" {
				format = filepath.Ext(output)
			}
			f, err := templates.ParseFormat(format)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return c.withRepository(func(repo *templates.Repository) error {
				return repo.Export(cmd.Context(), w, f)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "yaml, json or toml (default from --output extension, else yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "destination file, - for stdout")
	return cmd
}

func newTemplatesImportCmd(c *cli) *cobra.Command {
	var (
		format       string
		skipExisting bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create templates from an export file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				r = file
				if format == "" {
					format = filepath.Ext(args[0])
				}
			}
			f, err := templates.ParseFormat(format)
			if err != nil {
				return err
			}
			return c.withRepository(func(repo *templates.Repository) error {
				res, err := repo.Import(cmd.Context(), r, f, templates.ImportOptions{SkipExisting: skipExisting})
				fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", len(res.Created), len(res.Skipped))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "yaml, json or toml (default from file extension)")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "leave templates whose name already exists")
	return cmd
}

func newTemplatesDuplicateCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "duplicate ID",
		Short: "Copy a template into a new inactive one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTemplateID(args[0])
			if err != nil {
				return err
			}
			return c.withRepository(func(repo *templates.Repository) error {
				newID, err := repo.Duplicate(cmd.Context(), id, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created template %d\n", newID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the copy (default \"<name> - copy\")")
	return cmd
}

func newTemplatesDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a template",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTemplateID(args[0])
			if err != nil {
				return err
			}
			return c.withRepository(func(repo *templates.Repository) error {
				return repo.Remove(cmd.Context(), id)
			})
		},
	}
}

func newTemplatesToggleCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Flip a template between active and inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTemplateID(args[0])
			if err != nil {
				return err
			}
			return c.withRepository(func(repo *templates.Repository) error {
				if err := repo.ToggleActive(cmd.Context(), id); err != nil {
					return err
				}
				t, err := repo.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: active=%t\n", t.Name, t.IsActive)
				return nil
			})
		},
	}
}
