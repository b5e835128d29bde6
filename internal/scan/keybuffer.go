package scan

import (
	"bufio"
	"context"
	"io"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// KeyBuffer assembles keystrokes from a keyboard-wedge scanner into codes.
// A code is complete when Enter arrives; control keys are dropped.
type KeyBuffer struct {
	buf strings.Builder
}

// Feed adds one keystroke. It returns the buffered text and true when r
// terminates a non-empty code.
func (k *KeyBuffer) Feed(r rune) (string, bool) {
	if r == '\n' || r == '\r' {
		if k.buf.Len() == 0 {
			return "", false
		}
		code := k.buf.String()
		k.buf.Reset()
		return code, true
	}
	if unicode.IsControl(r) {
		return "", false
	}
	k.buf.WriteRune(r)
	return "", false
}

// Pending returns the keystrokes received since the last terminator
func (k *KeyBuffer) Pending() string {
	return k.buf.String()
}

// ReadCodes feeds r through a KeyBuffer and calls fn for each completed code
// until r is exhausted, fn fails or ctx is cancelled.
func ReadCodes(ctx context.Context, r io.Reader, fn func(string) error) error {
	var kb KeyBuffer
	br := bufio.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ch, _, err := br.ReadRune()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "failed to read scanner input")
		}

		if code, ok := kb.Feed(ch); ok {
			if err := fn(code); err != nil {
				return err
			}
		}
	}
}
