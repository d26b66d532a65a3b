package authctl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/mkravchenko/authd/internal/common"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// promptPassword reads the password twice without echo and checks that both
// entries match. The caller wipes the returned buffer when done.
func promptPassword(w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Enter password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)

	if !bytes.Equal(first, second) {
		common.WipeByteArray(first)
		return nil, errors.New("passwords do not match")
	}
	if len(first) < 8 {
		common.WipeByteArray(first)
		return nil, errors.New("password must be at least 8 characters")
	}

	return first, nil
}
