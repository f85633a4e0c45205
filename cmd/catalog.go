package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/census-map/internal/catalog"
)

var catalogSection string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the state and variable catalogs as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Default()
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}
		return writeCatalog(cmd.OutOrStdout(), cat, catalogSection)
	},
}

type catalogDoc struct {
	States    []catalog.State    `yaml:"states,omitempty"`
	Variables []catalog.Variable `yaml:"variables,omitempty"`
}

func writeCatalog(w io.Writer, cat *catalog.Catalog, section string) error {
	var doc catalogDoc
	switch section {
	case "", "all":
		doc.States = cat.States()
		doc.Variables = cat.Variables()
	case "states":
		doc.States = cat.States()
	case "variables":
		doc.Variables = cat.Variables()
	default:
		return eris.Errorf("unknown catalog section %q (want all, states or variables)", section)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "encode catalog")
	}
	return enc.Close()
}

func init() {
	catalogCmd.Flags().StringVar(&catalogSection, "section", "all", "catalog section to print: all, states or variables")
	rootCmd.AddCommand(catalogCmd)
}
