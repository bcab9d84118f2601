package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// secretReader reads passwords from the terminal without echo, or one per
// line when stdin is not a terminal.
type secretReader struct {
	in     io.Reader
	prompt io.Writer
	lines  *bufio.Reader
}

func newSecretReader(cmd *cobra.Command) *secretReader {
	return &secretReader{in: cmd.InOrStdin(), prompt: cmd.ErrOrStderr()}
}

func (s *secretReader) tty() (int, bool) {
	f, ok := s.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	return int(f.Fd()), true
}

func (s *secretReader) interactive() bool {
	_, ok := s.tty()
	return ok
}

func (s *secretReader) read(label string) (string, error) {
	if fd, ok := s.tty(); ok {
		fmt.Fprint(s.prompt, label+": ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(s.prompt)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return string(b), nil
	}

	if s.lines == nil {
		s.lines = bufio.NewReader(s.in)
	}
	line, err := s.lines.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
