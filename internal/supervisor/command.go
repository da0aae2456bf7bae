package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/mattjoyce/devdeck/internal/detect"
)

// Command is a structured child invocation. Env entries are appended to the
// supervisor's own environment.
type Command struct {
	Name string
	Args []string
	Env  []string
}

// String renders the command line for logs and run history.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Toolchain names the executables used to launch projects.
type Toolchain struct {
	NPM     string
	Python  string
	Uvicorn string
}

func DefaultToolchain() Toolchain {
	return Toolchain{NPM: "npm", Python: "python", Uvicorn: "uvicorn"}
}

func (tc Toolchain) withDefaults() Toolchain {
	def := DefaultToolchain()
	if tc.NPM == "" {
		tc.NPM = def.NPM
	}
	if tc.Python == "" {
		tc.Python = def.Python
	}
	if tc.Uvicorn == "" {
		tc.Uvicorn = def.Uvicorn
	}
	return tc
}

var venvDirs = []string{"venv", ".venv", "env"}

// BuildCommand returns the command that serves p on port.
func BuildCommand(p Project, port int, tc Toolchain) (Command, error) {
	return buildCommand(p, port, tc, runtime.GOOS)
}

func buildCommand(p Project, port int, tc Toolchain, goos string) (Command, error) {
	tc = tc.withDefaults()
	portArg := strconv.Itoa(port)

	switch p.Type {
	case detect.TypeVite:
		return Command{Name: tc.NPM, Args: []string{"run", "dev", "--", "--port", portArg, "--host"}}, nil
	case detect.TypeNextJS:
		return Command{Name: tc.NPM, Args: []string{"run", "dev", "--", "-p", portArg}}, nil
	case detect.TypeReact:
		return Command{Name: tc.NPM, Args: []string{"start"}}, nil
	case detect.TypeStatic:
		return Command{Name: tc.Python, Args: []string{"-m", "http.server", portArg}}, nil
	case detect.TypePython:
		return pythonCommand(p, portArg, tc, goos)
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnsupportedType, p.Type)
	}
}

func pythonCommand(p Project, portArg string, tc Toolchain, goos string) (Command, error) {
	venv := findVenv(p.Path, goos)
	var env []string
	python, uvicorn := tc.Python, tc.Uvicorn
	if venv != "" {
		bin := venvBin(venv, goos)
		env = []string{
			"VIRTUAL_ENV=" + venv,
			"PATH=" + bin + string(os.PathListSeparator) + os.Getenv("PATH"),
		}
		python = resolveIn(bin, python, goos)
		uvicorn = resolveIn(bin, uvicorn, goos)
	}

	mainPath := filepath.Join(p.Path, "main.py")
	if data, err := os.ReadFile(mainPath); err == nil {
		if strings.Contains(string(data), "FastAPI") {
			return Command{Name: uvicorn, Args: []string{"main:app", "--host", "0.0.0.0", "--port", portArg, "--reload"}, Env: env}, nil
		}
		return Command{Name: python, Args: []string{"main.py"}, Env: env}, nil
	}
	if fileExists(filepath.Join(p.Path, "app.py")) {
		return Command{Name: python, Args: []string{"app.py"}, Env: env}, nil
	}
	return Command{}, fmt.Errorf("%w: python project %q has no main.py or app.py", ErrUnsupportedType, p.ID)
}

// findVenv returns the first virtual environment whose activation script exists.
func findVenv(dir, goos string) string {
	for _, name := range venvDirs {
		root := filepath.Join(dir, name)
		activate := filepath.Join(root, "bin", "activate")
		if goos == "windows" {
			activate = filepath.Join(root, "Scripts", "activate.bat")
		}
		if fileExists(activate) {
			return root
		}
	}
	return ""
}

func venvBin(venv, goos string) string {
	if goos == "windows" {
		return filepath.Join(venv, "Scripts")
	}
	return filepath.Join(venv, "bin")
}

// resolveIn returns bin/name when it exists, otherwise name unchanged.
// Absolute or path-qualified names are never rewritten.
func resolveIn(bin, name, goos string) string {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, '\\') {
		return name
	}
	candidate := filepath.Join(bin, name)
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(candidate), ".exe") {
		candidate += ".exe"
	}
	if fileExists(candidate) {
		return candidate
	}
	return name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
