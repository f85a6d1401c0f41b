// Command agentline runs coding agents on isolated branches and merges
// their verified work.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Iron-Ham/agentline/internal/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	code := cmd.ExitFailure
	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}
	if msg := cmd.Diagnostic(err); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}
