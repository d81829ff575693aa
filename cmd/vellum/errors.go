package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// FatalError writes an error message to stderr and exits with code 1.
// Use this for fatal errors that prevent the command from completing.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
// Use this when you can provide an actionable suggestion to fix the error.
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// FatalErrorRespectJSON behaves like FatalError but emits a JSON error
// object on stdout when --json is set, so scripted callers always get
// parseable output.
func FatalErrorRespectJSON(format string, args ...interface{}) {
	if jsonOutput {
		msg := fmt.Sprintf(format, args...)
		out, _ := json.Marshal(map[string]string{"error": msg})
		fmt.Println(string(out))
		os.Exit(1)
	}
	FatalError(format, args...)
}

// WarnError writes a warning message to stderr and returns.
// Use this for optional operations that enhance functionality but aren't
// required.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
