package github

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", redact(args), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// redact drops file bodies from command lines that end up in errors.
func redact(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "content=") {
			a = "content=<redacted>"
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

// Client provides GitHub operations.
type Client struct {
	cmd CmdRunner
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd}
}

var repoRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidateRepo checks that repo is in owner/name form.
func ValidateRepo(repo string) error {
	if !repoRe.MatchString(repo) {
		return fmt.Errorf("invalid repository %q: must be owner/name", repo)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid file path %q", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." || part == "" {
			return fmt.Errorf("invalid file path %q", path)
		}
	}
	return nil
}

func validateBranch(branch string) error {
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name %q: must not start with -", branch)
	}
	return nil
}

// isNotFound matches gh output for a missing contents path.
func isNotFound(err error, out string) bool {
	s := out
	if err != nil {
		s += " " + err.Error()
	}
	return strings.Contains(s, "HTTP 404") || strings.Contains(s, "Not Found")
}

// FileSHA returns the blob SHA of path on branch, or "" when the file does
// not exist.
func (c *Client) FileSHA(repo, branch, path string) (string, error) {
	if err := ValidateRepo(repo); err != nil {
		return "", err
	}
	if err := validatePath(path); err != nil {
		return "", err
	}
	if err := validateBranch(branch); err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("repos/%s/contents/%s", repo, path)
	if branch != "" {
		endpoint += "?ref=" + branch
	}
	out, err := c.cmd.Run("api", endpoint, "--jq", ".sha")
	if err != nil {
		if isNotFound(err, out) {
			return "", nil
		}
		return "", fmt.Errorf("look up %s: %w", path, err)
	}
	return strings.TrimSpace(out), nil
}

// PutFile creates or replaces path on branch with content in a single
// commit and returns the commit SHA.
func (c *Client) PutFile(repo, branch, path, content, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("commit message is required")
	}
	sha, err := c.FileSHA(repo, branch, path)
	if err != nil {
		return "", err
	}

	args := []string{
		"api", "-X", "PUT", fmt.Sprintf("repos/%s/contents/%s", repo, path),
		"-f", "message=" + message,
		"-f", "content=" + base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if branch != "" {
		args = append(args, "-f", "branch="+branch)
	}
	if sha != "" {
		args = append(args, "-f", "sha="+sha)
	}
	args = append(args, "--jq", ".commit.sha")

	out, err := c.cmd.Run(args...)
	if err != nil {
		return "", fmt.Errorf("commit %s: %w", path, err)
	}
	commit := strings.TrimSpace(out)
	if commit == "" {
		return "", fmt.Errorf("commit %s: empty commit sha in response", path)
	}
	return commit, nil
}

// AuthStatus reports whether gh has usable credentials.
func (c *Client) AuthStatus() error {
	if _, err := c.cmd.Run("auth", "status"); err != nil {
		return fmt.Errorf("gh not authenticated: %w", err)
	}
	return nil
}
