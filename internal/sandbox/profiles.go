package sandbox

import (
	"fmt"
	"os"
	"path"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// Profile describes how to build and serve one kind of project.
type Profile struct {
	// Dockerfile builds the sandbox image. The workdir must exist in the image.
	Dockerfile string `yaml:"dockerfile"`

	// AppPort is the container port the application server listens on.
	AppPort int `yaml:"app_port"`

	// Start lists start command candidates in priority order.
	Start []StartCandidate `yaml:"start"`

	// Lint maps a file extension (".js") to a check command; {file} is replaced
	// with the quoted path.
	Lint map[string]string `yaml:"lint"`
}

// StartCandidate is used when File exists in the workdir and, if Script is
// set, package.json declares that npm script.
type StartCandidate struct {
	File    string `yaml:"file"`
	Script  string `yaml:"script,omitempty"`
	Command string `yaml:"command"`
}

// Profiles maps stack names to profiles.
type Profiles map[string]Profile

// Get returns the named profile.
func (p Profiles) Get(stack string) (Profile, error) {
	prof, ok := p[stack]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", forgeerrors.ErrUnknownStack, stack)
	}
	return prof, nil
}

// LintCommand returns the lint command for file, or "" when its extension has none.
func (p Profile) LintCommand(file string) string {
	tmpl, ok := p.Lint[strings.ToLower(path.Ext(file))]
	if !ok || tmpl == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{file}", ShellQuote(file))
}

// StartCommand renders a candidate command for this profile's port.
func (p Profile) StartCommand(c StartCandidate) string {
	return strings.ReplaceAll(c.Command, "{port}", fmt.Sprint(p.AppPort))
}

func commonLint(json string) map[string]string {
	return map[string]string{
		".sh":   "sh -n {file}",
		".json": json,
	}
}

func withLint(base map[string]string, extra map[string]string) map[string]string {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// BuiltinProfiles returns the node, python, go, and static profiles.
func BuiltinProfiles() Profiles {
	pyJSON := "python3 -m json.tool {file} > /dev/null"
	return Profiles{
		"node": {
			Dockerfile: `FROM node:20-bookworm-slim
RUN apt-get update && apt-get install -y --no-install-recommends git python3 ca-certificates && rm -rf /var/lib/apt/lists/*
WORKDIR /workspace
`,
			AppPort: 3000,
			Start: []StartCandidate{
				{File: "package.json", Script: "start", Command: "npm start"},
				{File: "package.json", Script: "dev", Command: "npm run dev"},
				{File: "server.js", Command: "node server.js"},
				{File: "index.js", Command: "node index.js"},
				{File: "app.js", Command: "node app.js"},
			},
			Lint: withLint(commonLint(`node -e "JSON.parse(require('fs').readFileSync(process.argv[1],'utf8'))" {file}`), map[string]string{
				".js":  "node --check {file}",
				".mjs": "node --check {file}",
				".cjs": "node --check {file}",
				".py":  "python3 -m py_compile {file}",
			}),
		},
		"python": {
			Dockerfile: `FROM python:3.12-slim
RUN apt-get update && apt-get install -y --no-install-recommends git ca-certificates && rm -rf /var/lib/apt/lists/*
WORKDIR /workspace
`,
			AppPort: 8000,
			Start: []StartCandidate{
				{File: "manage.py", Command: "python3 manage.py runserver 0.0.0.0:{port}"},
				{File: "app.py", Command: "python3 app.py"},
				{File: "main.py", Command: "python3 main.py"},
			},
			Lint: withLint(commonLint(pyJSON), map[string]string{
				".py": "python3 -m py_compile {file}",
			}),
		},
		"go": {
			Dockerfile: `FROM golang:1.23-bookworm
RUN apt-get update && apt-get install -y --no-install-recommends python3 && rm -rf /var/lib/apt/lists/*
WORKDIR /workspace
`,
			AppPort: 8080,
			Start: []StartCandidate{
				{File: "go.mod", Command: "go run ."},
			},
			Lint: withLint(commonLint(pyJSON), map[string]string{
				".go": `test -z "$(gofmt -l {file})"`,
			}),
		},
		"static": {
			Dockerfile: `FROM python:3.12-slim
RUN apt-get update && apt-get install -y --no-install-recommends git ca-certificates && rm -rf /var/lib/apt/lists/*
WORKDIR /workspace
`,
			AppPort: 8000,
			Start: []StartCandidate{
				{File: "index.html", Command: "python3 -m http.server {port} --bind 0.0.0.0"},
			},
			Lint: commonLint(pyJSON),
		},
	}
}

// LoadProfiles returns the built-in profiles with the YAML profiles in file
// merged over them. Fields set in the file override the built-in values.
func LoadProfiles(file string) (Profiles, error) {
	profiles := BuiltinProfiles()
	if file == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(file) //#nosec G304 -- path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read stack profiles: %w", err)
	}
	return mergeProfiles(profiles, data)
}

func mergeProfiles(profiles Profiles, data []byte) (Profiles, error) {
	var user map[string]Profile
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: stack profiles: %w", forgeerrors.ErrInvalidConfig, err)
	}

	for name, up := range user {
		base := profiles[name]
		if err := mergo.Merge(&base, up, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge stack profile %q: %w", name, err)
		}
		if base.Dockerfile == "" || base.AppPort <= 0 {
			return nil, fmt.Errorf("%w: stack profile %q needs dockerfile and app_port", forgeerrors.ErrInvalidConfig, name)
		}
		profiles[name] = base
	}
	return profiles, nil
}
