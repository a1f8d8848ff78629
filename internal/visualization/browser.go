package visualization

import (
	"fmt"
	"os/exec"
	"runtime"
)

// openers maps GOOS to the command that hands a URL to the desktop.
var openers = map[string][]string{
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"openbsd": {"xdg-open"},
	"darwin":  {"open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// OpenBrowser asks the desktop to open url and returns without waiting.
func OpenBrowser(url string) error {
	return openerCommand(runtime.GOOS, url).Start()
}

func openerCommand(goos, url string) *exec.Cmd {
	argv, ok := openers[goos]
	if !ok {
		return &exec.Cmd{Err: fmt.Errorf("no browser opener for %s", goos)}
	}
	args := append(append([]string{}, argv[1:]...), url)
	return exec.Command(argv[0], args...)
}
