// Package message prints operator facing output. Diagnostics go through
// slog instead.
package message

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/praetorian-inc/cloudshovel/version"
)

var (
	quiet     bool
	noColor   = !isTerminal(os.Stdout)
	silent    bool
	mutex     sync.RWMutex
	outWriter io.Writer = os.Stdout
	inReader  io.Reader = os.Stdin

	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	bannerColor  = color.New(color.FgHiYellow, color.Bold)
	sectionColor = color.New(color.FgHiYellow, color.Bold)
)

const asciiBanner = `
 ▗▄▄▖▗▖    ▗▄▖ ▗▖ ▗▖▗▄▄▄   ▗▄▄▖▗▖ ▗▖ ▗▄▖ ▗▖  ▗▖▗▄▄▄▖▗▖
▐▌   ▐▌   ▐▌ ▐▌▐▌ ▐▌▐▌  █ ▐▌   ▐▌ ▐▌▐▌ ▐▌▐▌  ▐▌▐▌   ▐▌
▐▌   ▐▌   ▐▌ ▐▌▐▌ ▐▌▐▌  █  ▝▀▚▖▐▛▀▜▌▐▌ ▐▌▐▌  ▐▌▐▛▀▀▘▐▌
▝▚▄▄▖▐▙▄▄▖▝▚▄▞▘▝▚▄▞▘▐▙▄▄▀ ▗▄▄▞▘▐▌ ▐▌▝▚▄▞▘ ▝▚▞▘ ▐▙▄▄▖▐▙▄▄▖
`

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetQuiet hides info, success and section output.
func SetQuiet(q bool) {
	mutex.Lock()
	defer mutex.Unlock()
	quiet = q
}

// SetNoColor disables colored output. Color is already off when stdout is
// not a terminal.
func SetNoColor(nc bool) {
	mutex.Lock()
	defer mutex.Unlock()
	noColor = nc || !isTerminal(os.Stdout)
	color.NoColor = noColor
}

// SetSilent hides everything but Critical.
func SetSilent(s bool) {
	mutex.Lock()
	defer mutex.Unlock()
	silent = s
}

// SetOutput changes the output writer (useful for testing)
func SetOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	outWriter = w
}

// SetInput changes where Confirm reads answers from.
func SetInput(r io.Reader) {
	mutex.Lock()
	defer mutex.Unlock()
	inReader = r
}

func printf(c *color.Color, prefix, format string, args ...interface{}) {
	mutex.RLock()
	defer mutex.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(outWriter, "%s%s\n", prefix, msg)
	} else {
		c.Fprintf(outWriter, "%s%s\n", prefix, msg)
	}
}

func muted(includeQuiet bool) bool {
	mutex.RLock()
	defer mutex.RUnlock()
	return silent || (includeQuiet && quiet)
}

func Info(format string, args ...interface{}) {
	if muted(true) {
		return
	}
	printf(infoColor, "[*] ", format, args...)
}

func Success(format string, args ...interface{}) {
	if muted(true) {
		return
	}
	printf(successColor, "[+] ", format, args...)
}

func Warning(format string, args ...interface{}) {
	if muted(false) {
		return
	}
	printf(warningColor, "[!] ", format, args...)
}

func Error(format string, args ...interface{}) {
	if muted(false) {
		return
	}
	printf(errorColor, "[-] ", format, args...)
}

// Critical is never suppressed.
func Critical(format string, args ...interface{}) {
	printf(errorColor, "[!!] ", format, args...)
}

func Emphasize(s string) string {
	mutex.RLock()
	defer mutex.RUnlock()
	if noColor {
		return s
	}
	return color.New(color.Bold).Sprint(s)
}

func Section(format string, args ...interface{}) {
	if muted(true) {
		return
	}

	mutex.RLock()
	defer mutex.RUnlock()
	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(outWriter, "\n-=[%s]=-\n\n", msg)
	} else {
		sectionColor.Fprintf(outWriter, "\n-=[%s]=-\n\n", msg)
	}
}

func Banner() {
	if muted(true) {
		return
	}

	mutex.RLock()
	defer mutex.RUnlock()
	if noColor {
		fmt.Fprint(outWriter, asciiBanner, version.AbbreviatedVersion(), "\n")
	} else {
		bannerColor.Fprint(outWriter, asciiBanner, version.AbbreviatedVersion(), "\n")
	}
}

// Confirm prints question and reports whether the operator typed expected.
// Prompts are shown even in quiet mode.
func Confirm(question, expected string) bool {
	mutex.RLock()
	fmt.Fprintf(outWriter, "%s ", question)
	reader := inReader
	mutex.RUnlock()

	answer, err := bufio.NewReader(reader).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.TrimSpace(answer) == expected
}
