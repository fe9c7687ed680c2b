package visualization

import (
	"runtime"
	"strings"
	"testing"
)

func TestOpenBrowser_SupportedPlatform(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		// Supported; compilation and platform coverage only.
	default:
		t.Skipf("skipping on unsupported platform: %s", runtime.GOOS)
	}
}

func TestBrowserURL(t *testing.T) {
	tests := []struct {
		target string
		prefix string
	}{
		{"http://localhost:8080/", "http://localhost:8080/"},
		{"https://example.com", "https://example.com"},
		{"file:///tmp/plot.svg", "file:///tmp/plot.svg"},
		{"plot.svg", "file:///"},
	}
	for _, tt := range tests {
		got, err := browserURL(tt.target)
		if err != nil {
			t.Fatalf("browserURL(%q) error = %v", tt.target, err)
		}
		if !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("browserURL(%q) = %q, want prefix %q", tt.target, got, tt.prefix)
		}
	}
	if got, _ := browserURL("plot.svg"); !strings.HasSuffix(got, "/plot.svg") {
		t.Errorf("browserURL(plot.svg) = %q", got)
	}
}
