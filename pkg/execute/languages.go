// Package execute dispatches code to the Piston execution sandbox and
// normalizes its responses for the event plane.
package execute

import "sort"

// Runtime pins a supported language to the sandbox version and the source
// filename the sandbox expects.
type Runtime struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Filename string `json:"filename"`
}

// runtimes is the closed language table. Requests naming anything else are
// rejected before touching the sandbox.
var runtimes = map[string]Runtime{
	"javascript": {Language: "javascript", Version: "18.15.0", Filename: "main.js"},
	"typescript": {Language: "typescript", Version: "5.0.3", Filename: "main.ts"},
	"python":     {Language: "python", Version: "3.10.0", Filename: "main.py"},
	"java":       {Language: "java", Version: "15.0.2", Filename: "Main.java"},
	"c":          {Language: "c", Version: "10.2.0", Filename: "main.c"},
	"cpp":        {Language: "cpp", Version: "10.2.0", Filename: "main.cpp"},
	"csharp":     {Language: "csharp", Version: "6.12.0", Filename: "Main.cs"},
	"go":         {Language: "go", Version: "1.16.2", Filename: "main.go"},
	"rust":       {Language: "rust", Version: "1.68.2", Filename: "main.rs"},
	"ruby":       {Language: "ruby", Version: "3.0.1", Filename: "main.rb"},
	"php":        {Language: "php", Version: "8.2.3", Filename: "main.php"},
	"kotlin":     {Language: "kotlin", Version: "1.8.20", Filename: "Main.kt"},
	"swift":      {Language: "swift", Version: "5.3.3", Filename: "main.swift"},
}

// Supported reports whether the language is in the runtime table.
func Supported(language string) bool {
	_, ok := runtimes[language]
	return ok
}

// RuntimeFor returns the pinned runtime for a language.
func RuntimeFor(language string) (Runtime, bool) {
	r, ok := runtimes[language]
	return r, ok
}

// SupportedRuntimes lists the runtime table in language order.
func SupportedRuntimes() []Runtime {
	out := make([]Runtime, 0, len(runtimes))
	for _, r := range runtimes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}
