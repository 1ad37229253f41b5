package overlay

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"rephrase/session"
)

var ErrNoForeground = errors.New("no foreground app")

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// The script prints "name|base64png"; the icon part is empty when the
// executable cannot be read.
const iconScript = `Add-Type -AssemblyName UIAutomationClient,System.Drawing -EA SilentlyContinue;` +
	`try{` +
	`$tp=[System.Windows.Automation.AutomationElement]::FocusedElement.GetCurrentPropertyValue([System.Windows.Automation.AutomationElement]::ProcessIdProperty);` +
	`$pr=Get-Process -Id $tp -EA SilentlyContinue;$n=$pr.Name;` +
	`try{$ic=[System.Drawing.Icon]::ExtractAssociatedIcon($pr.MainModule.FileName);` +
	`$ms=New-Object System.IO.MemoryStream;$ic.ToBitmap().Save($ms,[System.Drawing.Imaging.ImageFormat]::Png);` +
	`Write-Output ($n+[char]124+[Convert]::ToBase64String($ms.ToArray()))` +
	`}catch{Write-Output ($n+[char]124)}` +
	`}catch{Write-Output ('error'+[char]124)}`

const frontmostScript = `tell application "System Events" to get name of first application process whose frontmost is true`

// Lookup finds the focused application. It is best effort: every failure
// is an error the caller may ignore.
type Lookup struct {
	GOOS       string
	PowerShell string
	Run        Runner
	Timeout    time.Duration
}

func NewLookup(powershell string) *Lookup {
	if powershell == "" {
		powershell = "powershell.exe"
	}
	return &Lookup{GOOS: runtime.GOOS, PowerShell: powershell, Run: execRunner, Timeout: 5 * time.Second}
}

func (l *Lookup) App(ctx context.Context) (session.App, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	var (
		out []byte
		err error
	)
	switch l.GOOS {
	case "windows":
		out, err = l.Run(ctx, l.PowerShell, "-NoProfile", "-WindowStyle", "Hidden", "-Command", iconScript)
	case "darwin":
		out, err = l.Run(ctx, "osascript", "-e", frontmostScript)
	default:
		out, err = l.Run(ctx, "xdotool", "getactivewindow", "getwindowclassname")
	}
	if err != nil {
		return session.App{}, err
	}
	return parseApp(string(out))
}

func parseApp(out string) (session.App, error) {
	line := strings.TrimSpace(out)
	name, icon, _ := strings.Cut(line, "|")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "error" {
		return session.App{}, ErrNoForeground
	}
	return session.App{Name: name, Icon: strings.TrimSpace(icon)}, nil
}
