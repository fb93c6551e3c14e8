package analyzer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path"
	"sort"
	"strings"

	"devflow-autopilot/types"
)

// DependencyNode represents a node in the dependency graph
type DependencyNode struct {
	File     string   `json:"file"`
	Language string   `json:"language"`
	Imports  []string `json:"imports"`
}

// ManifestDependency is a package declared in a dependency manifest.
type ManifestDependency struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Manifest  string `json:"manifest"`
	Ecosystem string `json:"ecosystem"`
	Dev       bool   `json:"dev,omitempty"`
}

type Dependencies struct {
	Graph     []DependencyNode     `json:"graph"`
	Manifests []ManifestDependency `json:"manifests"`
}

func buildDependencies(files []types.FileInfo) *Dependencies {
	deps := &Dependencies{Graph: []DependencyNode{}, Manifests: []ManifestDependency{}}

	for _, f := range files {
		if f.Content == nil {
			continue
		}

		switch path.Base(f.RelativePath) {
		case "go.mod":
			deps.Manifests = append(deps.Manifests, parseGoMod(f.RelativePath, f.Content)...)
		case "package.json":
			deps.Manifests = append(deps.Manifests, parsePackageJSON(f.RelativePath, f.Content)...)
		case "requirements.txt":
			deps.Manifests = append(deps.Manifests, parseRequirements(f.RelativePath, f.Content)...)
		}

		node := DependencyNode{File: f.RelativePath, Language: f.Language}
		// Extract dependencies based on language
		switch f.Language {
		case "go":
			node.Imports = extractGoImports(f.Content)
		case "javascript", "typescript":
			node.Imports = extractJSImports(f.Content)
		case "python":
			node.Imports = extractPythonImports(f.Content)
		default:
			continue
		}
		deps.Graph = append(deps.Graph, node)
	}

	sort.Slice(deps.Manifests, func(i, j int) bool {
		if deps.Manifests[i].Manifest != deps.Manifests[j].Manifest {
			return deps.Manifests[i].Manifest < deps.Manifests[j].Manifest
		}
		return deps.Manifests[i].Name < deps.Manifests[j].Name
	})
	return deps
}

func lines(content []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, strings.TrimSpace(sc.Text()))
	}
	return out
}

func extractGoImports(content []byte) []string {
	imports := []string{}
	inBlock := false
	for _, line := range lines(content) {
		switch {
		case strings.HasPrefix(line, "import ("):
			inBlock = true
			continue
		case inBlock && line == ")":
			inBlock = false
			continue
		case !inBlock && !strings.HasPrefix(line, "import "):
			continue
		}

		start := strings.Index(line, "\"")
		end := strings.LastIndex(line, "\"")
		if start != -1 && end > start {
			imports = append(imports, line[start+1:end])
		}
	}
	return imports
}

func extractJSImports(content []byte) []string {
	imports := []string{}
	for _, line := range lines(content) {
		switch {
		case strings.HasPrefix(line, "import ") && strings.Contains(line, "from "):
			parts := strings.Split(line, "from ")
			imports = append(imports, strings.Trim(strings.TrimSpace(parts[len(parts)-1]), ";\"'`"))
		case strings.Contains(line, "require("):
			rest := line[strings.Index(line, "require(")+len("require("):]
			if end := strings.Index(rest, ")"); end > 0 {
				imports = append(imports, strings.Trim(rest[:end], "\"'`"))
			}
		}
	}
	return imports
}

func extractPythonImports(content []byte) []string {
	imports := []string{}
	for _, line := range lines(content) {
		switch {
		case strings.HasPrefix(line, "from "):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				imports = append(imports, fields[1])
			}
		case strings.HasPrefix(line, "import "):
			for _, mod := range strings.Split(strings.TrimPrefix(line, "import "), ",") {
				if fields := strings.Fields(mod); len(fields) > 0 {
					imports = append(imports, fields[0])
				}
			}
		}
	}
	return imports
}

func parseGoMod(manifest string, content []byte) []ManifestDependency {
	var deps []ManifestDependency
	inBlock := false
	for _, line := range lines(content) {
		switch {
		case strings.HasPrefix(line, "require ("):
			inBlock = true
			continue
		case inBlock && line == ")":
			inBlock = false
			continue
		case strings.HasPrefix(line, "require "):
			line = strings.TrimPrefix(line, "require ")
		case !inBlock:
			continue
		}

		line, _, _ = strings.Cut(line, "//")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		deps = append(deps, ManifestDependency{Name: fields[0], Version: fields[1], Manifest: manifest, Ecosystem: "go"})
	}
	return deps
}

func parsePackageJSON(manifest string, content []byte) []ManifestDependency {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil
	}

	var deps []ManifestDependency
	for name, version := range pkg.Dependencies {
		deps = append(deps, ManifestDependency{Name: name, Version: version, Manifest: manifest, Ecosystem: "npm"})
	}
	for name, version := range pkg.DevDependencies {
		deps = append(deps, ManifestDependency{Name: name, Version: version, Manifest: manifest, Ecosystem: "npm", Dev: true})
	}
	return deps
}

func parseRequirements(manifest string, content []byte) []ManifestDependency {
	var deps []ManifestDependency
	for _, line := range lines(content) {
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		name, version := line, ""
		for _, op := range []string{"==", ">=", "<=", "~=", ">", "<"} {
			if i := strings.Index(line, op); i > 0 {
				name, version = strings.TrimSpace(line[:i]), strings.TrimSpace(line[i:])
				break
			}
		}
		deps = append(deps, ManifestDependency{Name: name, Version: version, Manifest: manifest, Ecosystem: "pypi"})
	}
	return deps
}
