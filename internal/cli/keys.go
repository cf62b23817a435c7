// Package cli is the terminal front end of a test attempt: a key decoder for
// raw-mode input, a screen renderer and the loop tying both to a session.
package cli

import (
	"bufio"
	"io"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

type KeyKind int

const (
	KeyUnknown KeyKind = iota
	KeyRune
	KeyEnter
	KeyBackspace
	KeyEsc
	KeyUp
	KeyDown
	KeyRight
	KeyLeft
	KeyCtrlC
	KeyCtrlX
	KeyCtrlV
	KeyFocusIn
	KeyFocusOut
	KeyPaste
)

// Key is one decoded input.
type Key struct {
	Kind KeyKind
	Rune rune
	// Text holds the pasted content of a KeyPaste.
	Text string
}

// InputEvent maps clipboard keys onto the lockout vocabulary.
func (k Key) InputEvent() (proctor.InputEvent, bool) {
	switch k.Kind {
	case KeyCtrlC:
		return proctor.InputCopy, true
	case KeyCtrlX:
		return proctor.InputCut, true
	case KeyCtrlV, KeyPaste:
		return proctor.InputPaste, true
	}
	return 0, false
}

// Terminal mode switches.
const (
	FocusReportingOn   = "\x1b[?1004h"
	FocusReportingOff  = "\x1b[?1004l"
	BracketedPasteOn   = "\x1b[?2004h"
	BracketedPasteOff  = "\x1b[?2004l"
	AltScreenOn        = "\x1b[?1049h"
	AltScreenOff       = "\x1b[?1049l"
	HideCursor         = "\x1b[?25l"
	ShowCursor         = "\x1b[?25h"
	pasteEnd           = "\x1b[201~"
	maxPasteLen        = 64 << 10
	maxCSIParamsLength = 16
)

// Decoder turns raw-mode terminal bytes into Keys.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks for the next key. It returns io.EOF when the input ends.
func (d *Decoder) Next() (Key, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return Key{}, err
	}

	switch b {
	case 0x03:
		return Key{Kind: KeyCtrlC}, nil
	case 0x18:
		return Key{Kind: KeyCtrlX}, nil
	case 0x16:
		return Key{Kind: KeyCtrlV}, nil
	case '\r', '\n':
		return Key{Kind: KeyEnter}, nil
	case 0x7f, 0x08:
		return Key{Kind: KeyBackspace}, nil
	case 0x1b:
		return d.escape()
	}

	if b < 0x20 {
		return Key{Kind: KeyUnknown}, nil
	}
	if b < 0x80 {
		return Key{Kind: KeyRune, Rune: rune(b)}, nil
	}

	// Multi-byte UTF-8: let bufio reassemble the rune.
	if err := d.r.UnreadByte(); err != nil {
		return Key{}, err
	}
	r, _, err := d.r.ReadRune()
	if err != nil {
		return Key{}, err
	}
	return Key{Kind: KeyRune, Rune: r}, nil
}

// escape decodes what follows ESC. A lone ESC is one with nothing buffered behind it.
func (d *Decoder) escape() (Key, error) {
	if d.r.Buffered() == 0 {
		return Key{Kind: KeyEsc}, nil
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return Key{Kind: KeyEsc}, nil
	}
	if b != '[' {
		_ = d.r.UnreadByte()
		return Key{Kind: KeyEsc}, nil
	}

	var params []byte
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		if c >= 0x40 && c <= 0x7e {
			return d.csi(params, c)
		}
		if len(params) < maxCSIParamsLength {
			params = append(params, c)
		}
	}
}

func (d *Decoder) csi(params []byte, final byte) (Key, error) {
	switch {
	case len(params) == 0 && final == 'I':
		return Key{Kind: KeyFocusIn}, nil
	case len(params) == 0 && final == 'O':
		return Key{Kind: KeyFocusOut}, nil
	case final == 'A':
		return Key{Kind: KeyUp}, nil
	case final == 'B':
		return Key{Kind: KeyDown}, nil
	case final == 'C':
		return Key{Kind: KeyRight}, nil
	case final == 'D':
		return Key{Kind: KeyLeft}, nil
	case final == '~' && string(params) == "200":
		text, err := d.paste()
		return Key{Kind: KeyPaste, Text: text}, err
	}
	return Key{Kind: KeyUnknown}, nil
}

// paste reads a bracketed paste body up to its terminator. Bodies longer
// than maxPasteLen are truncated.
func (d *Decoder) paste() (string, error) {
	end := []byte(pasteEnd)
	body := make([]byte, 0, 64)
	matched := 0
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			return string(body), err
		}
		if c == end[matched] {
			matched++
			if matched == len(end) {
				return string(body), nil
			}
			continue
		}

		pending := append([]byte(nil), end[:matched]...)
		matched = 0
		if c == end[0] {
			matched = 1
		} else {
			pending = append(pending, c)
		}
		if len(body) < maxPasteLen {
			body = append(body, pending...)
		}
	}
}
