package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// ToPager writes content through the user's pager when it would overflow the
// terminal, and straight to stdout otherwise.
func ToPager(content string) error {
	if !shouldUsePager(content) {
		fmt.Print(content)
		return nil
	}

	pagerCmd := getPagerCommand()
	parts := strings.Fields(pagerCmd)
	if len(parts) == 0 {
		fmt.Print(content)
		return nil
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if parts[0] == "less" {
		// -R passes color codes through, -F quits on one screen, -X skips
		// the alternate screen so output stays in scrollback.
		cmd.Env = append(os.Environ(), "LESS=-RFX")
	}

	if err := cmd.Run(); err != nil {
		fmt.Print(content)
	}
	return nil
}

func shouldUsePager(content string) bool {
	if os.Getenv("BAMSYNC_NO_PAGER") != "" {
		return false
	}
	if !IsTTY(os.Stdout) {
		return false
	}
	height := getTerminalHeight()
	if height <= 0 {
		return false
	}
	return contentHeight(content) > height
}

func getPagerCommand() string {
	if pager := os.Getenv("BAMSYNC_PAGER"); pager != "" {
		return pager
	}
	if pager := os.Getenv("PAGER"); pager != "" {
		return pager
	}
	return "less"
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return height
}

// contentHeight counts display lines; a trailing newline does not add one.
func contentHeight(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
