package backfill

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/insights/internal/transcript"
)

// ParseFile reads transcripts from a .json file (one object or an array of
// objects) or a .jsonl file (one object per line). Every transcript must
// carry its id and personId.
func ParseFile(path string) ([]transcript.Transcript, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return parseJSONL(path)
	case ".json":
		return parseJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func parseJSON(path string) ([]transcript.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	data = bytes.TrimSpace(data)

	var out []transcript.Transcript
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
	} else {
		var tr transcript.Transcript
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, tr)
	}

	for i, tr := range out {
		if err := checkIDs(tr); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return out, nil
}

func parseJSONL(path string) ([]transcript.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var out []transcript.Transcript
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var tr transcript.Transcript
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := checkIDs(tr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}

func checkIDs(tr transcript.Transcript) error {
	if tr.ID == "" || tr.PersonID == "" {
		return fmt.Errorf("transcript is missing id or personId")
	}
	return nil
}
