// Copyright 2016 Tamás Demeter-Haludka
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Generator of crudified model files.

The generated file contains the gorm model, and a view module that
registers the crudified endpoints on an architect.
*/
package scaffoldcmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/tamasd/powernap/lib/log"
	"golang.org/x/tools/imports"
)

type Field struct {
	Name     string
	Type     string
	Validate string
}

func (f Field) JSONName() string {
	return snakeCase(f.Name)
}

// Parses a name:type[:validation] field definition.
func ParseField(def string) (Field, error) {
	parts := strings.SplitN(def, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Field{}, fmt.Errorf("invalid field definition %q, use name:type[:validation]", def)
	}

	f := Field{
		Name: exported(parts[0]),
		Type: parts[1],
	}
	if len(parts) == 3 {
		f.Validate = parts[2]
	}

	return f, nil
}

type Model struct {
	Package   string
	Name      string
	Architect string
	Blueprint string
	URL       string
	Fields    []Field
	// Adds an owner field that is set to the current user on creation.
	Owned  bool
	Public bool
}

func (m Model) normalized() Model {
	m.Name = exported(m.Name)
	if m.Package == "" {
		m.Package = "main"
	}
	if m.Architect == "" {
		m.Architect = "architect"
	}
	if m.Blueprint == "" {
		m.Blueprint = snakeCase(m.Name) + "s"
	}
	if m.URL == "" {
		m.URL = "/" + m.Blueprint
	}

	return m
}

var modelTemplate = template.Must(template.New("model").Parse(`// Code generated by powernap scaffold.

package {{.Package}}

import (
	"net/http"

	"github.com/tamasd/powernap"
	"gorm.io/gorm"
)

type {{.Name}} struct {
	ID uint ` + "`" + `gorm:"primaryKey" json:"id"` + "`" + `
{{- range .Fields}}
	{{.Name}} {{.Type}} ` + "`" + `json:"{{.JSONName}}"{{if .Validate}} validate:"{{.Validate}}"{{end}}` + "`" + `
{{- end}}
{{- if .Owned}}
	Owner string ` + "`" + `gorm:"size:64;index" json:"owner"` + "`" + `
{{- end}}
}
{{if .Owned}}
func (m *{{.Name}}) OwnerID() string {
	return m.Owner
}

func (m *{{.Name}}) ScopeList(r *http.Request, db *gorm.DB) *gorm.DB {
	return db.Where("owner = ?", powernap.CurrentUser(r).GetID())
}
{{end}}
func init() {
	powernap.RegisterViewModule("{{.Architect}}", "{{.Blueprint}}", func(a *powernap.Architect) error {
		bp := a.SubBlueprint("{{.Blueprint}}", "", map[string]interface{}{
			powernap.DecoratorPublic: {{.Public}},
		})
		bp.Crudify("{{.URL}}", &{{.Name}}{}, powernap.CrudifyConfig{
{{- if .Owned}}
			Events: []powernap.CrudEvent{powernap.CrudEventCallback{
				InsideCallback: func(r *http.Request, method string, instance interface{}) {
					if method == powernap.CrudPost {
						instance.(*{{.Name}}).Owner = powernap.CurrentUser(r).GetID()
					}
				},
			}},
{{- end}}
		})

		return nil
	})
}
`))

// Renders the model file, and formats it with goimports.
func Render(m Model) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := modelTemplate.Execute(buf, m.normalized()); err != nil {
		return nil, err
	}

	return imports.Process("", buf.Bytes(), nil)
}

func CreateScaffoldCmd(logger *log.Log) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scaffold [model name]",
		Short: "generates a crudified model",
	}

	var (
		pkg       = cmd.Flags().String("package", "main", "Package name")
		output    = cmd.Flags().String("output", "", "Output file. Use - for stdout. The default is the snake case model name.")
		architect = cmd.Flags().String("architect", "architect", "Name of the architect")
		blueprint = cmd.Flags().String("blueprint", "", "Name of the blueprint. The default is the plural model name.")
		url       = cmd.Flags().String("url", "", "URL of the endpoints. The default is /blueprint.")
		fields    = cmd.Flags().StringArray("field", nil, "A name:type[:validation] field. Can be repeated.")
		owned     = cmd.Flags().Bool("owned", false, "Restrict the objects to their owners")
		public    = cmd.Flags().Bool("public", true, "Make the endpoints public")
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			cmd.Usage()
			return
		}

		m := Model{
			Package:   *pkg,
			Name:      args[0],
			Architect: *architect,
			Blueprint: *blueprint,
			URL:       *url,
			Owned:     *owned,
			Public:    *public,
		}

		for _, def := range *fields {
			f, err := ParseField(def)
			if err != nil {
				logger.Fatalln(err)
			}
			m.Fields = append(m.Fields, f)
		}

		rendered, err := Render(m)
		if err != nil {
			logger.Fatalln(err)
		}

		if *output == "" {
			*output = snakeCase(exported(m.Name)) + ".go"
		}

		if *output == "-" {
			fmt.Fprint(cmd.OutOrStdout(), string(rendered))
			return
		}

		if err := os.WriteFile(*output, rendered, 0644); err != nil {
			logger.Fatalln(err)
		}

		logger.Verbose().Printf("%s is written\n", *output)
	}

	return cmd
}

func exported(name string) string {
	if name == "" {
		return name
	}

	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])

	return string(r)
}

func snakeCase(name string) string {
	r := []rune(name)
	out := make([]rune, 0, len(r)+4)
	for i, c := range r {
		if unicode.IsUpper(c) {
			if i > 0 && (unicode.IsLower(r[i-1]) || (i+1 < len(r) && unicode.IsLower(r[i+1]) && unicode.IsUpper(r[i-1]))) {
				out = append(out, '_')
			}
			c = unicode.ToLower(c)
		}
		out = append(out, c)
	}

	return string(out)
}
