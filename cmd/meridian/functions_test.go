package main

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/rules/eval"
)

func TestSearchFunctions(t *testing.T) {
	registry := eval.DefaultRegistry()

	all := searchFunctions(registry, "")
	if len(all) != len(registry.Builtins()) {
		t.Errorf("len(all) = %d, want %d", len(all), len(registry.Builtins()))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Fatalf("functions not sorted: %s before %s", all[i-1].Name, all[i].Name)
		}
	}

	lei := searchFunctions(registry, "lei")
	if len(lei) == 0 || lei[0].Name != "IS_LEI" {
		t.Errorf("searchFunctions(lei) = %v, want IS_LEI first", lei)
	}

	if got := searchFunctions(registry, "zzzq"); len(got) != 0 {
		t.Errorf("searchFunctions(zzzq) = %v, want none", got)
	}
}

func TestFunctionsCommand(t *testing.T) {
	stdout, _, err := execute(t, "functions", "substr", "--format", "json")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	var list []FunctionInfo
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(list) == 0 || list[0].Name != "SUBSTRING" {
		t.Fatalf("list = %+v, want SUBSTRING first", list)
	}
	if list[0].Signature == "" || list[0].Description == "" {
		t.Errorf("SUBSTRING = %+v, want signature and description", list[0])
	}
}

func TestFunctionsCommand_Text(t *testing.T) {
	stdout, _, err := execute(t, "functions", "--format", "text")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if !strings.Contains(stdout, "IS_LEI(text)") {
		t.Errorf("output missing IS_LEI signature:\n%s", stdout)
	}
}

func TestFunctionsCommand_CSV(t *testing.T) {
	stdout, _, err := execute(t, "functions", "round", "--format", "csv")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if records[0][0] != "name" || records[1][0] != "ROUND" {
		t.Errorf("records = %v, want header then ROUND", records)
	}
}

func TestFunctionsCommand_NoMatch(t *testing.T) {
	stdout, _, err := execute(t, "functions", "zzzq", "--format", "text")
	if got := cli.ExitCode(err); got != cli.ExitFailure {
		t.Errorf("ExitCode() = %d, want %d", got, cli.ExitFailure)
	}
	if !cli.Silent(err) {
		t.Errorf("error %v should not be printed", err)
	}
	if !strings.Contains(stdout, "no matching functions") {
		t.Errorf("output = %q", stdout)
	}
}
