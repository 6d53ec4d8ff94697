package language

import (
	"sort"
	"strings"
	"time"
)

var aliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
	"c++":     "cpp",
	"cxx":     "cpp",
	"golang":  "go",
	"java17":  "java",
}

// Builtin returns the profiles shipped with the judge.
func Builtin() []Profile {
	return []Profile{
		{
			Name:            "python",
			DisplayName:     "Python 3",
			Extension:       ".py",
			RunCommand:      "python3 {source}",
			VersionCommands: []string{"python3 --version"},
			Timeout:         5 * time.Second,
			Image:           "python:3.11-alpine",
			InstallHint:     "Install Python 3 (e.g. `apt install python3`) and make sure python3 is on PATH.",
		},
		{
			Name:            "javascript",
			DisplayName:     "JavaScript (Node.js)",
			Extension:       ".js",
			RunCommand:      "node {source}",
			VersionCommands: []string{"node --version"},
			Timeout:         5 * time.Second,
			Image:           "node:20-alpine",
			InstallHint:     "Install Node.js 18+ from https://nodejs.org and make sure node is on PATH.",
		},
		{
			Name:            "java",
			DisplayName:     "Java",
			Extension:       ".java",
			DefaultBaseName: "Main",
			FixedBaseName:   true,
			CompileCommand:  "javac -d {dir} {source}",
			RunCommand:      "java -Xss64m -cp {dir} {name}",
			VersionCommands: []string{"javac -version", "java -version"},
			Timeout:         10 * time.Second,
			CompileTimeout:  30 * time.Second,
			Image:           "eclipse-temurin:21-jdk-alpine",
			InstallHint:     "Install a JDK 17+ (e.g. `apt install openjdk-17-jdk`); both javac and java must be on PATH.",
		},
		{
			Name:            "c",
			DisplayName:     "C (gcc)",
			Extension:       ".c",
			CompileCommand:  "gcc -O2 -std=c11 -o {artifact} {source} -lm",
			RunCommand:      "{artifact}",
			VersionCommands: []string{"gcc --version"},
			Timeout:         5 * time.Second,
			CompileTimeout:  20 * time.Second,
			Image:           "gcc:13",
			InstallHint:     "Install gcc (e.g. `apt install build-essential`).",
		},
		{
			Name:            "cpp",
			DisplayName:     "C++17 (g++)",
			Extension:       ".cpp",
			CompileCommand:  "g++ -O2 -std=c++17 -o {artifact} {source}",
			RunCommand:      "{artifact}",
			VersionCommands: []string{"g++ --version"},
			Timeout:         5 * time.Second,
			CompileTimeout:  30 * time.Second,
			Image:           "gcc:13",
			InstallHint:     "Install g++ (e.g. `apt install build-essential`).",
		},
		{
			Name:            "go",
			DisplayName:     "Go",
			Extension:       ".go",
			CompileCommand:  "go build -o {artifact} {source}",
			RunCommand:      "{artifact}",
			VersionCommands: []string{"go version"},
			Env:             []string{"GOCACHE={dir}/.gocache", "GOPATH={dir}/.gopath", "GO111MODULE=off"},
			Timeout:         5 * time.Second,
			CompileTimeout:  60 * time.Second,
			Image:           "golang:1.22-alpine",
			InstallHint:     "Install Go from https://go.dev/dl and make sure go is on PATH.",
		},
	}
}

// Registry is an immutable lookup table of profiles.
type Registry struct {
	profiles map[string]Profile
	names    []string
}

// NewRegistry indexes the given profiles by normalised name.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, profile := range profiles {
		name := strings.ToLower(strings.TrimSpace(profile.Name))
		if name == "" {
			continue
		}
		profile.Name = name
		if _, exists := r.profiles[name]; !exists {
			r.names = append(r.names, name)
		}
		r.profiles[name] = profile
	}
	sort.Strings(r.names)
	return r
}

// Default returns a registry holding the builtin profiles.
func Default() *Registry {
	return NewRegistry(Builtin()...)
}

// Normalize maps user supplied language keys onto profile names.
func Normalize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}

// Lookup resolves a language key, accepting common aliases.
func (r *Registry) Lookup(name string) (Profile, bool) {
	profile, ok := r.profiles[Normalize(name)]
	return profile, ok
}

// Names lists the registered profile names in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Profiles lists the registered profiles in lexical order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.profiles[name])
	}
	return out
}

// ByExtension finds the profile owning a file extension such as ".py".
func (r *Registry) ByExtension(ext string) (Profile, bool) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return Profile{}, false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, name := range r.names {
		if profile := r.profiles[name]; strings.EqualFold(profile.Extension, ext) {
			return profile, true
		}
	}
	return Profile{}, false
}
