package middleware

import (
	"fmt"
	"net/url"
	"strings"
)

// Input validation and sanitization utilities

// MaxCodeChars caps inline code submissions.
const MaxCodeChars = 100000

// ValidateScanType checks if the scan type is in the allowed list
func ValidateScanType(scanType string) error {
	allowed := map[string]bool{
		"code":     true,
		"repo_url": true,
	}

	if !allowed[strings.ToLower(scanType)] {
		return fmt.Errorf("invalid scan type: %s (allowed: code, repo_url)", scanType)
	}
	return nil
}

// ValidateCode checks an inline code submission
func ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("code cannot be empty")
	}
	if len(code) > MaxCodeChars {
		return fmt.Errorf("code exceeds maximum length of %d characters", MaxCodeChars)
	}
	return nil
}

// ValidateRepoURL validates and sanitizes repository URLs
func ValidateRepoURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("repoUrl cannot be empty")
	}

	// Parse URL
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	// Check scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}

	// Check for localhost/internal IPs (SSRF protection)
	host := strings.ToLower(u.Hostname())
	blocked := []string{"localhost", "127.0.0.1", "0.0.0.0", "[::]", "::1"}
	for _, b := range blocked {
		if strings.Contains(host, b) {
			return fmt.Errorf("localhost/internal IPs are not allowed")
		}
	}

	// Block private IP ranges (basic check)
	if strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "172.16.") ||
		strings.HasPrefix(host, "172.31.") {
		return fmt.Errorf("private IP ranges are not allowed")
	}

	return nil
}

// ValidateBranch validates a git branch name
func ValidateBranch(branch string) error {
	if branch == "" {
		return nil // Optional field, defaults to main
	}

	// Block option injection and shell metacharacters
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid branch name")
	}
	dangerous := []string{"..", "$(", "`", "&", "|", ";", " ", "\n", "\r", "\x00"}
	for _, d := range dangerous {
		if strings.Contains(branch, d) {
			return fmt.Errorf("invalid characters in branch name")
		}
	}

	return nil
}

// ValidateScanRequest checks a scan submission against its declared type
func ValidateScanRequest(scanType, code, repoURL, branch string) error {
	if err := ValidateScanType(scanType); err != nil {
		return err
	}

	switch strings.ToLower(scanType) {
	case "code":
		if err := ValidateCode(code); err != nil {
			return err
		}
	case "repo_url":
		if err := ValidateRepoURL(repoURL); err != nil {
			return err
		}
		if err := ValidateBranch(branch); err != nil {
			return err
		}
	}

	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination page size
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 10 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage validates pagination page number
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
