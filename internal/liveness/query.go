package liveness

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// Query lists the process table as free text, one process per line.
type Query interface {
	List(ctx context.Context) (string, error)
}

// QueryFunc adapts a function to Query.
type QueryFunc func(ctx context.Context) (string, error)

// List calls f.
func (f QueryFunc) List(ctx context.Context) (string, error) { return f(ctx) }

// ErrEmptyOutput is returned when the process query succeeded but printed nothing.
var ErrEmptyOutput = errors.New("liveness: empty process list")

// CommandQuery lists full command lines with the platform's process tool.
type CommandQuery struct{}

// windowsCommandLines prints each process's full command line. tasklist only
// reports image names, which never contain script arguments.
const windowsCommandLines = "Get-CimInstance Win32_Process | ForEach-Object { $_.CommandLine }"

// List runs ps (PowerShell on Windows) and returns its output.
func (CommandQuery) List(ctx context.Context) (string, error) {
	name, args := queryCommand(runtime.GOOS)
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return "", ErrEmptyOutput
	}
	return string(out), nil
}

// queryCommand returns the process listing command for goos. Both forms
// print one full command line per process.
func queryCommand(goos string) (string, []string) {
	if goos == "windows" {
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", windowsCommandLines}
	}
	return "ps", []string{"-A", "-o", "args="}
}

// Match reports whether any line of output contains each signature,
// compared case-insensitively. Empty signatures never match.
func Match(output, primarySignature, workerSignature string) (primary, worker bool) {
	primarySignature = strings.ToLower(strings.TrimSpace(primarySignature))
	workerSignature = strings.ToLower(strings.TrimSpace(workerSignature))

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.ToLower(scanner.Text())
		if primarySignature != "" && strings.Contains(line, primarySignature) {
			primary = true
		}
		if workerSignature != "" && strings.Contains(line, workerSignature) {
			worker = true
		}
		if primary && worker {
			break
		}
	}
	return primary, worker
}
