//go:build linux || darwin

package shell

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var fallbackShells = []string{"/bin/bash", "/bin/zsh", "/bin/sh"}

// DetectShell picks the shell to spawn. A non-empty preferred shell must be
// executable; otherwise $SHELL is tried, then the fallback list.
func DetectShell(preferred string) (string, error) {
	if preferred != "" {
		if isExecutable(preferred) {
			return preferred, nil
		}
		return "", fmt.Errorf("configured shell %s is not executable", preferred)
	}

	if sh := os.Getenv("SHELL"); sh != "" && isExecutable(sh) {
		return sh, nil
	}
	for _, candidate := range fallbackShells {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no shell found: checked $SHELL, %v", fallbackShells)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Mode()&0o111 == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, err = exec.LookPath(abs)
	return err == nil
}
