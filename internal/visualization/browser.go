package visualization

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// OpenBrowser opens target in the user's default browser. A target that
// is not a URL is treated as a local file path.
// It supports Linux (xdg-open), macOS (open), and Windows (cmd start).
func OpenBrowser(target string) error {
	url, err := browserURL(target)
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func browserURL(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "file://") {
		return target, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", target, err)
	}
	path := filepath.ToSlash(abs)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + path, nil
}
