// internal/browser/allocator.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/consentscan/internal/config"
)

// ExecOptions translates the browser config into chromedp allocator options.
func ExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	// /dev/shm is tiny in most containers.
	opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))

	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	// The defaults already run headless.
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	for _, f := range parseArgs(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}

type commandFlag struct {
	name  string
	value interface{}
}

// parseArgs turns "--flag" and "--key=value" strings into allocator flags.
// chromedp adds the leading dashes itself, so they are stripped here.
func parseArgs(args []string) []commandFlag {
	flags := make([]commandFlag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		name, value, ok := strings.Cut(arg, "=")
		if name == "" {
			continue
		}
		if !ok {
			flags = append(flags, commandFlag{name: name, value: true})
			continue
		}
		flags = append(flags, commandFlag{name: name, value: value})
	}
	return flags
}
