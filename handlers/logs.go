package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

// LogsHandler serves the tail of the rotating log file.
type LogsHandler struct {
	logFile string
}

func NewLogsHandler(logFile string) *LogsHandler {
	return &LogsHandler{logFile: logFile}
}

// Tail returns the last lines of the log as plain text.
// GET /logs?lines=200
func (h *LogsHandler) Tail(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			jsonError(w, "lines must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(parsed, maxLogLines)
	}

	lines, err := h.readLogs(n)
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, strings.Join(lines, "\n"))
}

func (h *LogsHandler) readLogs(n int) ([]string, error) {
	if h.logFile == "" {
		return nil, fmt.Errorf("no log file configured")
	}
	f, err := os.Open(h.logFile)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", h.logFile, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return readLastNLines(f, stat.Size(), n)
}

// readLastNLines reads backwards from the end in fixed chunks until n lines
// are collected.
func readLastNLines(r io.ReaderAt, size int64, n int) ([]string, error) {
	if size == 0 {
		return nil, nil
	}

	const chunkSize = 64 * 1024
	var lines []string
	var leftover []byte
	position := size

	for position > 0 && len(lines) < n {
		readSize := min(int64(chunkSize), position)
		position -= readSize

		chunk := make([]byte, readSize)
		if _, err := r.ReadAt(chunk, position); err != nil && err != io.EOF {
			return nil, err
		}
		chunk = append(chunk, leftover...)

		parts := bytes.Split(chunk, []byte("\n"))
		leftover = parts[0]
		for i := len(parts) - 1; i > 0 && len(lines) < n; i-- {
			line := string(bytes.TrimRight(parts[i], "\r"))
			if line == "" && len(lines) == 0 {
				continue // trailing newline
			}
			lines = append(lines, line)
		}
	}
	if len(leftover) > 0 && len(lines) < n {
		lines = append(lines, string(leftover))
	}

	// collected newest first
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
