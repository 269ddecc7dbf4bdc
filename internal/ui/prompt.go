package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// In is where prompts read answers from.
var In io.Reader = os.Stdin

// Confirm asks a yes/no question. With force, or when input is exhausted,
// the default answer is returned without waiting.
func (p *Printer) Confirm(prompt string, defaultYes, force bool) bool {
	if force {
		return defaultYes
	}
	choices := "[y/N]"
	if defaultYes {
		choices = "[Y/n]"
	}
	scanner := bufio.NewScanner(In)
	for {
		p.mu.Lock()
		fmt.Fprint(p.out(), colArrow.Sprint("-> "))
		fmt.Fprint(p.out(), colInfo.Sprint(prompt+" "+choices+" "))
		p.mu.Unlock()

		if !scanner.Scan() {
			return defaultYes
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			return defaultYes
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}

// Confirm asks on the process wide printer.
func Confirm(prompt string, defaultYes, force bool) bool {
	return std.Confirm(prompt, defaultYes, force)
}
