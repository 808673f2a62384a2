package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/02loveslollipop/companyOperationSimulator/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

const jsonDoc = `{
  "global": {
    "const": {"fee": 10},
    "variable": {
      "b_users": {"start": 5, "increment": 1},
      "a_users": {"start": 1, "increment": 2}
    }
  },
  "cost": {
    "ops": {"description": "ops", "resource": [
      {"name": "srv", "use_case": "", "calculation_method": "", "billing_method": "", "unit": "USD",
       "calculation_function": "fee * 2"}
    ]}
  },
  "income": {"description": "rev", "resource": [
    {"name": "sales", "use_case": "", "calculation_method": "", "billing_method": "", "unit": "USD",
     "calculation_function": "fee * 5"}
  ]}
}`

const yamlDoc = `global:
  const:
    fee: 10
  variable:
    b_users:
      start: 5
      increment: 1
    a_users:
      start: 1
      increment: 2
cost:
  ops:
    description: ops
    resource:
      - name: srv
        use_case: ""
        calculation_method: ""
        billing_method: ""
        unit: USD
        calculation_function: fee * 2
income:
  description: rev
  resource:
    - name: sales
      use_case: ""
      calculation_method: ""
      billing_method: ""
      unit: USD
      calculation_function: fee * 5
`

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "model.json", jsonDoc)
	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Global.Const["fee"] != 10 {
		t.Errorf("fee = %v", doc.Global.Const["fee"])
	}
	if len(doc.Global.Variable) != 2 || doc.Global.Variable[0].Name != "b_users" {
		t.Errorf("variable order not preserved: %+v", doc.Global.Variable)
	}
	if _, err := model.Build(doc); err != nil {
		t.Errorf("loaded document failed to build: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "model.yaml", yamlDoc)
	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Global.Const["fee"] != 10 {
		t.Errorf("fee = %v", doc.Global.Const["fee"])
	}
	// Declared order survives the YAML path too.
	if len(doc.Global.Variable) != 2 || doc.Global.Variable[0].Name != "b_users" || doc.Global.Variable[1].Name != "a_users" {
		t.Errorf("variable order not preserved: %+v", doc.Global.Variable)
	}
	if doc.Cost[0].Name != "ops" || doc.Cost[0].Category.Resource[0].Name != "srv" {
		t.Errorf("cost tree = %+v", doc.Cost)
	}
	if _, err := model.Build(doc); err != nil {
		t.Errorf("loaded document failed to build: %v", err)
	}
}

func TestLoadFormatsAgree(t *testing.T) {
	jdoc, err := Load(writeFile(t, "model.json", jsonDoc))
	if err != nil {
		t.Fatal(err)
	}
	ydoc, err := Load(writeFile(t, "model.yml", yamlDoc))
	if err != nil {
		t.Fatal(err)
	}
	jm, err := model.Build(jdoc)
	if err != nil {
		t.Fatal(err)
	}
	ym, err := model.Build(ydoc)
	if err != nil {
		t.Fatal(err)
	}
	if len(jm.Variables) != len(ym.Variables) {
		t.Fatal("variable count differs between formats")
	}
	for i := range jm.Variables {
		if jm.Variables[i].Name != ym.Variables[i].Name || jm.Variables[i].Start != ym.Variables[i].Start {
			t.Errorf("variable %d differs: %+v vs %+v", i, jm.Variables[i], ym.Variables[i])
		}
	}
}

func TestLoadJSONSyntaxErrorPosition(t *testing.T) {
	path := writeFile(t, "broken.json", "{\n  \"global\": {,\n}")
	_, err := Load(path)
	if err == nil {
		t.Fatal("broken JSON loaded without error")
	}
	var perr *ParseFileError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ParseFileError", err)
	}
	if perr.Line != 2 {
		t.Errorf("line = %d, want 2", perr.Line)
	}
	if !strings.Contains(perr.Error(), "^") {
		t.Error("error message has no caret snippet")
	}
}

func TestLoadYAMLSyntaxError(t *testing.T) {
	path := writeFile(t, "broken.yaml", "global:\n  const: [unclosed\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("broken YAML loaded without error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("missing file loaded without error")
	}
}
