// Package devenv locates the workspace and the files under dev/.state that live tests
// and the dev bootstrapper share.
package devenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"insights-backend/lib/configutil"
)

const moduleName = "insights-backend"

// LinkedinTestConfig is read from dev/.state/linkedin_test.json5 by the live tests.
type LinkedinTestConfig struct {
	// CookieFile is a cookie export or a stored artifact of a logged in account.
	CookieFile   string `json:"cookie_file"`
	Organization string `json:"organization"`
	BaseURL      string `json:"base_url"`
}

var modName = regexp.MustCompile(`(?m)^module\s+(\S+)\s*$`)

func isWorkspaceRoot(dir string) bool {
	mod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return false
	}
	matches := modName.FindSubmatch(mod)
	return len(matches) >= 2 && string(matches[1]) == moduleName
}

func GetWorkspaceRoot() (string, error) {
	current, err := filepath.Abs(".")
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs("/")
	if err != nil {
		return "", err
	}

	for current != root {
		if isWorkspaceRoot(current) {
			return current, nil
		}
		current = filepath.Dir(current)
	}
	return "", os.ErrNotExist
}

func GetStateFilePath(path string) (string, error) {
	root, err := GetWorkspaceRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "dev", ".state", path), nil
}

func GetStateFile(path string) ([]byte, error) {
	statePath, err := GetStateFilePath(path)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(statePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no file at %s: %w", statePath, err)
	}
	return contents, err
}

// GetStateConfig reads a json5 config (and its .local override) from dev/.state.
func GetStateConfig[T any](path string) (T, error) {
	statePath, err := GetStateFilePath(path)
	if err != nil {
		var out T
		return out, err
	}
	return configutil.ReadConfig[T](statePath)
}

// ResolvePath expands a leading "<dev_state>" into the dev/.state directory, creating
// it when needed. Other paths are returned unchanged.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, "<dev_state>") {
		return path, nil
	}

	root, err := GetWorkspaceRoot()
	if err != nil {
		return "", err
	}
	stateDir := filepath.Join(root, "dev", ".state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", err
	}
	subpath := strings.TrimPrefix(strings.TrimPrefix(path, "<dev_state>"), string(os.PathSeparator))
	return filepath.Join(stateDir, subpath), nil
}
