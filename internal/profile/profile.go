// Package profile edits shell profile files by appending lines only when they
// are not already present.
package profile

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mac-bootstrap/internal/logger"
)

// Missing returns the lines of want that are not yet in the file at path.
// Lines are compared with surrounding whitespace trimmed. A missing file is
// treated as empty.
func Missing(path string, want []string) ([]string, error) {
	existing, err := readLines(path)
	if err != nil {
		return nil, err
	}

	var missing []string
	seen := make(map[string]bool)
	for _, line := range want {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || existing[trimmed] || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		missing = append(missing, trimmed)
	}
	return missing, nil
}

// HasLine reports whether line is present in the file.
func HasLine(path, line string) (bool, error) {
	missing, err := Missing(path, []string{line})
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// EnsureLines appends the lines that are missing and returns them.
// The file and its parent directory are created when absent.
func EnsureLines(path string, lines []string) ([]string, error) {
	missing, err := Missing(path, lines)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		logger.Debug("%s already has all %d lines", path, len(lines))
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}

	needsNewline, err := endsWithoutNewline(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for appending: %w", path, err)
	}

	var b strings.Builder
	if needsNewline {
		b.WriteString("\n")
	}
	for _, line := range missing {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", path, err)
	}

	for _, line := range missing {
		logger.Info("Added to %s: %s", path, line)
	}
	return missing, nil
}

func readLines(path string) (map[string]bool, error) {
	lines := make(map[string]bool)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return lines, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines[strings.TrimSpace(scanner.Text())] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// endsWithoutNewline reports whether a non-empty file lacks a trailing newline,
// so the first appended line does not get glued to the last existing one.
func endsWithoutNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
