// Package detect classifies a project directory by its build/runtime tooling.
package detect

import (
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

// Type is a project's toolchain classification.
type Type string

const (
	TypeVite   Type = "vite"
	TypeNextJS Type = "nextjs"
	TypeReact  Type = "react"
	TypePython Type = "python"
	TypeStatic Type = "static"
)

const (
	packageManifest = "package.json"
	htmlEntry       = "index.html"
)

// pythonMarkers are the files that mark a Python project, checked in order.
var pythonMarkers = []string{"main.py", "app.py", "requirements.txt"}

// Types lists every type tag in detection priority order.
func Types() []Type {
	return []Type{TypeNextJS, TypeVite, TypeReact, TypePython, TypeStatic}
}

// IsMarker reports whether a file name can change how a directory is
// classified.
func IsMarker(name string) bool {
	switch name {
	case packageManifest, htmlEntry:
		return true
	}
	for _, m := range pythonMarkers {
		if name == m {
			return true
		}
	}
	return false
}

// Valid reports whether t is one of the known type tags.
func (t Type) Valid() bool {
	switch t {
	case TypeVite, TypeNextJS, TypeReact, TypePython, TypeStatic:
		return true
	}
	return false
}

// Detect inspects the immediate contents of dir and returns its type.
// The second return value is false when dir is not a recognised project.
// Detect never recurses and never writes.
func Detect(dir string) (Type, bool) {
	if fileExists(filepath.Join(dir, packageManifest)) {
		return detectPackage(filepath.Join(dir, packageManifest)), true
	}

	for _, name := range pythonMarkers {
		if fileExists(filepath.Join(dir, name)) {
			return TypePython, true
		}
	}

	if fileExists(filepath.Join(dir, htmlEntry)) {
		return TypeStatic, true
	}
	return "", false
}

// detectPackage classifies a JS/TS package by its declared dependencies.
// An unreadable or malformed manifest still counts as a JS project.
func detectPackage(manifestPath string) Type {
	data, err := os.ReadFile(manifestPath)
	if err != nil || !gjson.ValidBytes(data) {
		return TypeReact
	}

	doc := gjson.ParseBytes(data)
	switch {
	case hasDependency(doc, "next"):
		return TypeNextJS
	case hasDependency(doc, "vite"):
		return TypeVite
	default:
		return TypeReact
	}
}

func hasDependency(doc gjson.Result, name string) bool {
	key := gjson.Escape(name)
	for _, section := range []string{"dependencies", "devDependencies"} {
		deps := doc.Get(section)
		if deps.IsObject() && deps.Get(key).Exists() {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
