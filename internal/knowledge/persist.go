// Package knowledge keeps the project-wide memory that outlives a single
// issue: facts settled in one conversation are appended to a JSONL file and
// fed back into the editor's prompt for every later one.
package knowledge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bookctl/bookctl/internal/state"
)

// TypeEstablishedFact marks records written by Persist.
const TypeEstablishedFact = "established_fact"

// Record is one line of knowledge.jsonl. Fact records carry Key and Value;
// hand-written Q&A records carry Question and Answer and usually no Type.
type Record struct {
	Type          string `json:"type,omitempty"`
	Key           string `json:"key,omitempty"`
	Value         string `json:"value,omitempty"`
	SourceIssue   int    `json:"source_issue,omitempty"`
	EstablishedAt string `json:"established_at,omitempty"`
	ID            string `json:"id,omitempty"`
	Question      string `json:"question,omitempty"`
	Answer        string `json:"answer,omitempty"`
	ExtractedAt   string `json:"extracted_at,omitempty"`
	Confidence    string `json:"confidence,omitempty"`
}

// ConfidenceExplicit marks answers the author gave in their own words.
const ConfidenceExplicit = "explicit"

// IsFact reports whether r was produced by Persist.
func (r Record) IsFact() bool { return r.Type == TypeEstablishedFact }

// IsQA reports whether r is a question/answer pair.
func (r Record) IsQA() bool { return r.Question != "" && r.Answer != "" }

// ReadRecords parses a JSONL file. Blank and malformed lines are skipped. A
// missing file yields no records and no error.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	defer f.Close()
	return decodeRecords(f)
}

func decodeRecords(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read knowledge base: %w", err)
	}
	return out, nil
}

// Persist appends every established fact of s whose key (case-insensitive)
// is not already recorded as a fact in the file at path, and returns how many
// lines it wrote. Parent directories are created as needed. A state without
// facts touches nothing.
func Persist(s *state.ConversationState, path string) (int, error) {
	if len(s.Established) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create knowledge dir: %w", err)
	}

	existing, err := ReadRecords(path)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, rec := range existing {
		if rec.IsFact() {
			known[strings.ToLower(rec.Key)] = true
		}
	}

	var buf bytes.Buffer
	written := 0
	for _, f := range s.Established {
		k := strings.ToLower(f.Key)
		if known[k] {
			continue
		}
		line, err := json.Marshal(Record{
			Type:          TypeEstablishedFact,
			Key:           f.Key,
			Value:         f.Value,
			SourceIssue:   s.IssueNumber,
			EstablishedAt: formatTime(f.EstablishedAt),
		})
		if err != nil {
			return 0, fmt.Errorf("encode fact %q: %w", f.Key, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		known[k] = true
		written++
	}
	if written == 0 {
		return 0, nil
	}
	if err := appendLines(path, buf.Bytes()); err != nil {
		return 0, err
	}
	return written, nil
}

// AppendQA records an answer the author gave on issue sourceIssue. Records
// are keyed "q<issue>" (at least three digits); an issue that already has one
// is left alone and false is returned.
func AppendQA(path, question, answer string, sourceIssue int) (Record, bool, error) {
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return Record{}, false, errors.New("append qa: question and answer are required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Record{}, false, fmt.Errorf("create knowledge dir: %w", err)
	}
	existing, err := ReadRecords(path)
	if err != nil {
		return Record{}, false, err
	}
	id := fmt.Sprintf("q%03d", sourceIssue)
	for _, rec := range existing {
		if rec.ID == id {
			return rec, false, nil
		}
	}

	rec := Record{
		ID:          id,
		Question:    question,
		Answer:      answer,
		SourceIssue: sourceIssue,
		ExtractedAt: time.Now().UTC().Format(time.RFC3339),
		Confidence:  ConfidenceExplicit,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, false, fmt.Errorf("encode qa: %w", err)
	}
	if err := appendLines(path, append(line, '\n')); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func appendLines(path string, data []byte) error {
	needsNewline, err := missingTrailingNewline(path)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open knowledge base: %w", err)
	}
	if needsNewline {
		if _, err := out.WriteString("\n"); err != nil {
			out.Close()
			return fmt.Errorf("write knowledge base: %w", err)
		}
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return fmt.Errorf("write knowledge base: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close knowledge base: %w", err)
	}
	return nil
}

func missingTrailingNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open knowledge base: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false, err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read knowledge base: %w", err)
	}
	return last[0] != '\n', nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
