package domain

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	DefaultOrganization = "General"
	DefaultProcess      = "New Process"

	SessionOrganization  = "Shadow_Sessions"
	sessionProcessPrefix = "Session_"
)

// Identity keys a knowledge-base entry
type Identity struct {
	Organization string `json:"company_name"`
	Process      string `json:"process_name"`
}

// DefaultIdentity is substituted whenever a result carries no usable identity block
func DefaultIdentity() Identity {
	return Identity{Organization: DefaultOrganization, Process: DefaultProcess}
}

// SessionIdentity maps an opaque session id onto the reserved session organization
func SessionIdentity(sessionID string) Identity {
	return Identity{Organization: SessionOrganization, Process: sessionProcessPrefix + sessionID}
}

// Sanitized returns the identity with both parts reduced to key-safe characters
func (i Identity) Sanitized() Identity {
	return Identity{Organization: Sanitize(i.Organization), Process: Sanitize(i.Process)}
}

// String renders the identity as organization/process
func (i Identity) String() string {
	return i.Organization + "/" + i.Process
}

// Sanitize keeps letters, digits, space, hyphen and underscore, then trims spaces.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

var metadataBlock = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

// MergedResult is a reduced document split into its identity block and body
type MergedResult struct {
	Identity Identity
	Body     string
	// Extracted is false when the default identity was substituted.
	Extracted bool
}

// ExtractIdentity pulls the fenced JSON identity block out of a generated document.
// It never fails: a missing or malformed block yields the default identity and the
// text unchanged.
func ExtractIdentity(text string) MergedResult {
	match := metadataBlock.FindStringSubmatch(text)
	if match == nil {
		return MergedResult{Identity: DefaultIdentity(), Body: text}
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(match[1]), &meta); err != nil {
		return MergedResult{Identity: DefaultIdentity(), Body: text}
	}

	identity := DefaultIdentity()
	// a name that sanitizes to nothing could not be stored, so the default stays
	if v, ok := meta["company_name"].(string); ok && Sanitize(v) != "" {
		identity.Organization = v
	}
	if v, ok := meta["process_name"].(string); ok && Sanitize(v) != "" {
		identity.Process = v
	}

	body := strings.TrimSpace(metadataBlock.ReplaceAllString(text, ""))
	return MergedResult{Identity: identity, Body: body, Extracted: true}
}

// DocumentInfo describes one stored version
type DocumentInfo struct {
	ID                string
	Organization      string
	Filename          string
	ProcessName       string
	Version           int
	CreatedAt         time.Time
	ProcessingSeconds float64
}
