package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a command line and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PowerShell synthesizes shortcuts with System.Windows.Forms.SendKeys.
// It needs no native input hook, at the cost of one process per stroke.
type PowerShell struct {
	Path    string
	Run     Runner
	Timeout time.Duration
}

func NewPowerShell(path string) *PowerShell {
	if path == "" {
		path = "powershell.exe"
	}
	return &PowerShell{Path: path, Run: execRunner, Timeout: 10 * time.Second}
}

func (p *PowerShell) send(keys string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()
	script := "Add-Type -AssemblyName System.Windows.Forms;" +
		"[System.Windows.Forms.SendKeys]::SendWait('" + keys + "')"
	out, err := p.Run(ctx, p.Path, "-NoProfile", "-WindowStyle", "Hidden", "-Command", script)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("sendkeys %s: %w: %s", keys, err, msg)
		}
		return fmt.Errorf("sendkeys %s: %w", keys, err)
	}
	return nil
}

func (p *PowerShell) Copy() error      { return p.send("^c") }
func (p *PowerShell) Paste() error     { return p.send("^v") }
func (p *PowerShell) SelectAll() error { return p.send("^a") }

func (p *PowerShell) ShiftLeft(n int) error {
	return p.send(fmt.Sprintf("+{LEFT %d}", n))
}
