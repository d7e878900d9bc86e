package main

import (
	"fmt"
	"io"
	"os"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/term"
)

// secureWipe safely clears sensitive data from memory
func secureWipe(data []byte) {
	if data == nil {
		return
	}
	for i := range data {
		data[i] = 0
	}
}

// stdinIsTerminal and readPassword are replaced in tests.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// askPassword reads a password from the terminal without echoing it.
func askPassword(prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Enter password: ")
	password, err := readPassword()
	fmt.Fprintln(prompt)
	if err != nil {
		return "", errors.Errorf("reading password: %w", err)
	}
	defer secureWipe(password)
	return string(password), nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "**********"
}
