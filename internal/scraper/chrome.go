package scraper

import (
	"os/exec"

	"github.com/jmylchreest/harvest/internal/logger"
)

// Common Chrome/Chromium binary names across different systems
var chromeBinaryNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// FindChromePath searches PATH and the usual install locations for a
// Chrome or Chromium binary. It returns "" when none is found, leaving
// chromedp to its own lookup.
func FindChromePath() string {
	for _, name := range chromeBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			logger.Debug("found Chrome binary", "name", name, "path", path)
			return path
		}
	}
	logger.Warn("no Chrome binary found, browser mode may not work")
	return ""
}
