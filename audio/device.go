package audio

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// SelectDevice presents an interactive microphone picker on the terminal.
// A single device is returned without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := picker{n: len(devices)}
	renderDevices(os.Stdout, devices, p.cursor)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch p.key(buf[:n]) {
		case pickDone:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case pickAbort:
			fmt.Print("\r\n")
			return nil, fmt.Errorf("device selection cancelled")
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderDevices(os.Stdout, devices, p.cursor)
	}
}

type pickResult int

const (
	pickMoved pickResult = iota
	pickDone
	pickAbort
)

type picker struct {
	n      int
	cursor int
}

// key applies one terminal read: arrows or j/k move, Enter confirms,
// Ctrl+C or q aborts.
func (p *picker) key(b []byte) pickResult {
	if len(b) == 1 {
		switch b[0] {
		case '\r', '\n':
			return pickDone
		case 3, 'q':
			return pickAbort
		case 'j':
			p.move(1)
		case 'k':
			p.move(-1)
		}
		return pickMoved
	}
	if len(b) == 3 && b[0] == 0x1b && b[1] == '[' {
		switch b[2] {
		case 'A':
			p.move(-1)
		case 'B':
			p.move(1)
		}
	}
	return pickMoved
}

func (p *picker) move(d int) {
	p.cursor = max(0, min(p.n-1, p.cursor+d))
}

func renderDevices(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		btTag := ""
		if IsBluetooth(d.Name) {
			btTag = " \x1b[33m[⚠ headset mic, lower accuracy]\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, btTag)
		}
	}
}
