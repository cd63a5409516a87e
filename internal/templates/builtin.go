package templates

import (
	_ "embed"
	"fmt"

	"github.com/tinytelemetry/canopy/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinYAML []byte

var builtins = mustLoadBuiltins()

func mustLoadBuiltins() []model.Template {
	var doc document
	if err := yaml.Unmarshal(builtinYAML, &doc); err != nil {
		panic(fmt.Sprintf("templates: parse builtin.yaml: %v", err))
	}
	for i, t := range doc.Templates {
		if err := t.Validate(); err != nil {
			panic(fmt.Sprintf("templates: builtin %d (%s): %v", i, t.Name, err))
		}
	}
	return doc.Templates
}

// Builtins returns fresh copies of the default templates in seeding order.
func Builtins() []model.Template {
	out := make([]model.Template, len(builtins))
	for i, t := range builtins {
		out[i] = t.Clone()
	}
	return out
}
