package state

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedLanguage is the YAML shape of a language catalog entry.
type SeedLanguage struct {
	Name           string  `yaml:"name"`
	Version        string  `yaml:"version"`
	FileName       string  `yaml:"file_name"`
	FileExtension  string  `yaml:"file_extension"`
	CompileCommand *string `yaml:"compile_command"`
	RunCommand     string  `yaml:"run_command"`
}

type seedCatalog struct {
	Languages []SeedLanguage `yaml:"languages"`
}

// LoadCatalog reads a language catalog from a YAML file.
func LoadCatalog(path string) ([]SeedLanguage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog seedCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if len(catalog.Languages) == 0 {
		return nil, fmt.Errorf("catalog file %s contains no languages", path)
	}
	return catalog.Languages, nil
}

// SeedLanguages upserts the given catalog entries, matching existing
// languages by name.
func SeedLanguages(ctx context.Context, store *Store, entries []SeedLanguage) error {
	for _, e := range entries {
		lang := &Language{
			Name:           e.Name,
			Version:        e.Version,
			FileName:       e.FileName,
			FileExtension:  e.FileExtension,
			CompileCommand: e.CompileCommand,
			RunCommand:     e.RunCommand,
		}
		if err := store.UpsertLanguage(ctx, lang); err != nil {
			return fmt.Errorf("failed to seed language %s: %w", e.Name, err)
		}
	}
	return nil
}

// DefaultCatalog returns the built-in language catalog used when no
// catalog file is supplied.
func DefaultCatalog() []SeedLanguage {
	return []SeedLanguage{
		{
			Name:          "Python",
			Version:       "3.13",
			FileName:      "main",
			FileExtension: ".py",
			RunCommand:    "/usr/local/bin/python3 main.py",
		},
		{
			Name:          "Node.js",
			Version:       "20",
			FileName:      "main",
			FileExtension: ".js",
			RunCommand:    "/usr/bin/node --jitless main.js",
		},
		{
			Name:           "C",
			Version:        "gcc 12.2.0",
			FileName:       "main",
			FileExtension:  ".c",
			CompileCommand: strPtr("/usr/bin/gcc *.c -o main"),
			RunCommand:     "./main",
		},
		{
			Name:           "C++",
			Version:        "g++ 12.2.0",
			FileName:       "main",
			FileExtension:  ".cpp",
			CompileCommand: strPtr("/usr/bin/g++ *.cpp -o main"),
			RunCommand:     "./main",
		},
		{
			Name:           "Java",
			Version:        "openjdk 17",
			FileName:       "Main",
			FileExtension:  ".java",
			CompileCommand: strPtr("/usr/lib/jvm/java-17-openjdk-amd64/bin/javac Main.java"),
			RunCommand:     "/usr/lib/jvm/java-17-openjdk-amd64/bin/java Main",
		},
		{
			Name:           "C#",
			Version:        "mono 6.12",
			FileName:       "Program",
			FileExtension:  ".cs",
			CompileCommand: strPtr("/usr/bin/csc -out:Program.exe *.cs"),
			RunCommand:     "/usr/bin/mono --gc=sgen Program.exe",
		},
		{
			Name:           "Go",
			Version:        "1.21",
			FileName:       "main",
			FileExtension:  ".go",
			CompileCommand: strPtr("/usr/local/go/bin/go build -o main *.go"),
			RunCommand:     "./main",
		},
		{
			Name:           "Rust",
			Version:        "1.90.0",
			FileName:       "main",
			FileExtension:  ".rs",
			CompileCommand: strPtr("/usr/local/cargo/bin/rustc --crate-type bin -o main main.rs"),
			RunCommand:     "./main",
		},
		{
			Name:          "PHP",
			Version:       "8.2",
			FileName:      "main",
			FileExtension: ".php",
			RunCommand:    "/usr/bin/php8.2 main.php",
		},
		{
			Name:          "Lua",
			Version:       "5.4",
			FileName:      "main",
			FileExtension: ".lua",
			RunCommand:    "/usr/bin/lua5.4 main.lua",
		},
		{
			Name:           "Pascal",
			Version:        "fpc 3.2.2",
			FileName:       "main",
			FileExtension:  ".pas",
			CompileCommand: strPtr("/usr/bin/x86_64-linux-gnu-fpc-3.2.2 -o./main *.pas"),
			RunCommand:     "./main",
		},
		{
			Name:          "SQL",
			Version:       "sqlite3 3.40",
			FileName:      "main",
			FileExtension: ".sql",
			RunCommand:    "/usr/bin/sqlite3 < main.sql",
		},
	}
}

func strPtr(s string) *string { return &s }
