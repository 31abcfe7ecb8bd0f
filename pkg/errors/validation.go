package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidateName validates a resource name or agent ID for safety.
// Both are used as path components under the state directory, so the rules
// reject anything that could escape it:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - No leading dot (hidden files)
//   - Maximum length of 128 characters
func ValidateName(kind, name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "%s cannot be empty", kind)
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidInput, "%s too long (max 128 characters)", kind)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "%s contains invalid control characters", kind)
		}
	}

	if strings.ContainsAny(name, `/\`) {
		return New(ErrCodeInvalidInput, "%s cannot contain path separators: %q", kind, name)
	}

	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidInput, "%s cannot contain path traversal sequences: %q", kind, name)
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidInput, "%s cannot start with a dot: %q", kind, name)
	}

	return nil
}

// agentIDRegex matches agent IDs: letters, digits, dot, dash and underscore.
var agentIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateAgentID validates a caller-supplied agent ID.
func ValidateAgentID(id string) error {
	if err := ValidateName("agent id", id); err != nil {
		return err
	}

	if !agentIDRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid agent id: %q", id)
	}

	return nil
}

// ValidateResourceName validates a resource name.
func ValidateResourceName(name string) error {
	return ValidateName("resource name", name)
}
