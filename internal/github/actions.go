package github

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Environment read when running inside a GitHub Actions job.
const (
	EnvOutput      = "GITHUB_OUTPUT"
	EnvRepository  = "GITHUB_REPOSITORY"
	EnvIssueNumber = "ISSUE_NUMBER"
	EnvCommentBody = "COMMENT_BODY"
)

// SetOutput records a step output for later workflow steps. Outside Actions
// (GITHUB_OUTPUT unset) it does nothing. Multi-line values use a heredoc
// with a random delimiter so the value cannot terminate it early.
func SetOutput(name, value string) error {
	path := os.Getenv(EnvOutput)
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open step output: %w", err)
	}
	_, err = f.WriteString(formatOutput(name, value))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write step output %s: %w", name, err)
	}
	return nil
}

func formatOutput(name, value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return name + "=" + value + "\n"
	}
	delim := "ghadelimiter_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return name + "<<" + delim + "\n" + value + "\n" + delim + "\n"
}

// IssueFromEnv returns ISSUE_NUMBER, or 0 when unset or not a number.
func IssueFromEnv() int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvIssueNumber)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
