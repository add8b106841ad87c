package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// UISpinner wraps spinner for terminal output. It degrades to plain lines
// when verbose logging is on or stdout is not a terminal.
type UISpinner struct {
	sp    *spinner.Spinner
	out   io.Writer
	plain bool
}

// NewUISpinner creates a new spinner with the given message
func NewUISpinner(verbose bool, message string) *UISpinner {
	s := &UISpinner{
		out:   os.Stdout,
		plain: verbose || !term.IsTerminal(int(os.Stdout.Fd())),
	}

	if !s.plain {
		// Use dots spinner style (CharSet 14)
		s.sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stdout))
		s.sp.Prefix = "  "
		s.sp.Suffix = " " + message
		s.sp.Start()
	} else {
		fmt.Fprintf(s.out, "→ %s\n", message)
	}

	return s
}

// Update replaces the spinner message
func (s *UISpinner) Update(message string) {
	if s.sp != nil {
		s.sp.Lock()
		s.sp.Suffix = " " + message
		s.sp.Unlock()
	}
}

// Success stops the spinner and prints a success message
func (s *UISpinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "  %s %s\n", color.New(color.FgGreen).Sprint("✓"), message)
}

// Fail stops the spinner and prints an error message
func (s *UISpinner) Fail(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "  %s %s\n", color.New(color.FgRed).Sprint("✗"), message)
}

// Stop stops the spinner without printing anything
func (s *UISpinner) Stop() {
	if s.sp != nil {
		s.sp.Stop()
		s.sp = nil
		fmt.Fprint(s.out, "\r\033[K") // Clear the line
	}
}
