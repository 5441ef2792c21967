package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	if len(catalog) != 12 {
		t.Fatalf("Expected 12 languages, got %d", len(catalog))
	}

	byName := map[string]SeedLanguage{}
	for _, lang := range catalog {
		if lang.Name == "" || lang.Version == "" || lang.FileName == "" || lang.FileExtension == "" || lang.RunCommand == "" {
			t.Errorf("Incomplete catalog entry: %+v", lang)
		}
		byName[lang.Name] = lang
	}

	python := byName["Python"]
	if python.CompileCommand != nil {
		t.Error("Expected Python to have no compile command")
	}
	if python.RunCommand != "/usr/local/bin/python3 main.py" {
		t.Errorf("Unexpected Python run command: %s", python.RunCommand)
	}

	c := byName["C"]
	if c.CompileCommand == nil || *c.CompileCommand != "/usr/bin/gcc *.c -o main" {
		t.Errorf("Unexpected C compile command: %v", c.CompileCommand)
	}

	java := byName["Java"]
	if java.FileName != "Main" {
		t.Errorf("Expected Java source file Main, got %s", java.FileName)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	content := `
languages:
  - name: Python
    version: "3.13"
    file_name: main
    file_extension: .py
    run_command: /usr/local/bin/python3 main.py
  - name: C
    version: gcc 12.2.0
    file_name: main
    file_extension: .c
    compile_command: /usr/bin/gcc *.c -o main
    run_command: ./main
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	langs, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(langs) != 2 {
		t.Fatalf("Expected 2 languages, got %d", len(langs))
	}
	if langs[0].Name != "Python" || langs[0].CompileCommand != nil {
		t.Errorf("Unexpected first entry: %+v", langs[0])
	}
	if langs[1].CompileCommand == nil || *langs[1].CompileCommand != "/usr/bin/gcc *.c -o main" {
		t.Errorf("Unexpected second entry: %+v", langs[1])
	}
}

func TestLoadCatalog_Missing(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLoadCatalog_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "languages.yaml")
	if err := os.WriteFile(path, []byte("languages: []\n"), 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	if _, err := LoadCatalog(path); err == nil {
		t.Error("Expected an error for an empty catalog")
	}
}
