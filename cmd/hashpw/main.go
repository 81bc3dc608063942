// Command hashpw prints an argon2id salt and hash for a password read from
// the terminal, for seeding or repairing user rows by hand.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/server/credentials"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errMismatch = errors.New("passwords do not match")

func main() {
	if err := run(os.Stdout, int(os.Stdin.Fd())); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer, fd int) error {
	first, err := prompt(w, fd, "Password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(first)

	second, err := prompt(w, fd, "Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return errMismatch
	}
	if len(first) == 0 {
		return errors.New("empty password")
	}

	salt, hash, err := credentials.HashPassword(string(first))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "salt: %s\nhash: %s\n", hex.EncodeToString(salt), hex.EncodeToString(hash))
	return nil
}

func prompt(w io.Writer, fd int, label string) ([]byte, error) {
	fmt.Fprint(w, label)
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}
