package launch

import (
	"os"
	"os/exec"
	"strings"
)

// ExecutableAvailable reports whether a TryExec-style value resolves to an
// executable: absolute and relative paths are stat-checked directly, bare
// names are searched on PATH.
func ExecutableAvailable(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsRune(name, '/') {
		return isExecutableFile(name)
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
