package storage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cloo-solutions/procminer/internal/domain"
)

const (
	docExt         = ".md"
	versionMarker  = "_v"
	metadataPrefix = "<!-- metadata:processing_time="
	metadataSuffix = " -->"
	metadataKey    = "metadata:processing_time"

	// DegradedLocator is returned by object backends when a save could not be written
	DegradedLocator = "error_saving_to_cloud"
)

// Key returns the storage key of one version: {org}/{org}_{process}_v{N}.md
func Key(id domain.Identity, version int) string {
	id = id.Sanitized()
	return id.Organization + "/" + versionPrefix(id) + strconv.Itoa(version) + docExt
}

// versionPrefix is the filename prefix shared by every version of an identity.
// Including the trailing "_v" keeps "Billing" from matching "Billing_Extra".
func versionPrefix(id domain.Identity) string {
	return id.Organization + "_" + id.Process + versionMarker
}

// parseVersion returns N when filename is exactly prefix + N + ".md"
func parseVersion(filename, prefix string) (int, bool) {
	if !strings.HasPrefix(filename, prefix) || !strings.HasSuffix(filename, docExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(filename, prefix), docExt)
	return parseDigits(digits)
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// maxVersion scans filenames for the highest version of prefix, 0 when none
func maxVersion(filenames []string, prefix string) int {
	highest := 0
	for _, name := range filenames {
		if v, ok := parseVersion(name, prefix); ok && v > highest {
			highest = v
		}
	}
	return highest
}

// splitFilename breaks "{base}_v{N}.md" into base and N
func splitFilename(filename string) (string, int, bool) {
	if !strings.HasSuffix(filename, docExt) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(filename, docExt)
	idx := strings.LastIndex(stem, versionMarker)
	if idx <= 0 {
		return "", 0, false
	}
	v, ok := parseDigits(stem[idx+len(versionMarker):])
	if !ok {
		return "", 0, false
	}
	return stem[:idx], v, true
}

// describe builds the listing entry for one stored file. It returns false for
// names that do not carry a version suffix.
func describe(id, org, filename string) (domain.DocumentInfo, bool) {
	base, version, ok := splitFilename(filename)
	if !ok {
		return domain.DocumentInfo{}, false
	}
	return domain.DocumentInfo{
		ID:           id,
		Organization: org,
		Filename:     filename,
		ProcessName:  strings.TrimPrefix(base, org+"_"),
		Version:      version,
	}, true
}

// identifier returns "org/process" for a file stored under org, or false when
// the filename does not start with the organization prefix.
func identifier(org, filename string) (string, bool) {
	base, _, ok := splitFilename(filename)
	if !ok || !strings.HasPrefix(base, org+"_") {
		return "", false
	}
	process := base[len(org)+1:]
	if process == "" {
		return "", false
	}
	return org + "/" + process, true
}

// encode prepends the processing time marker when seconds is positive
func encode(text string, processingSeconds float64) []byte {
	if processingSeconds <= 0 {
		return []byte(text)
	}
	return []byte(metadataPrefix + strconv.FormatFloat(processingSeconds, 'f', -1, 64) + metadataSuffix + "\n" + text)
}

// ProcessingTime reads the marker from the first line, 0 when absent
func ProcessingTime(content string) float64 {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if !strings.Contains(line, metadataKey) {
		return 0
	}
	_, value, ok := strings.Cut(line, "=")
	if !ok {
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(value, "-->")), 64)
	if err != nil {
		return 0
	}
	return seconds
}

// StripMetadata removes the processing time marker line if present
func StripMetadata(content string) string {
	line, rest, found := strings.Cut(content, "\n")
	if strings.Contains(line, metadataKey) {
		if !found {
			return ""
		}
		return rest
	}
	return content
}

// sortNewestFirst orders documents by creation time, newest first
func sortNewestFirst(docs []domain.DocumentInfo) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

// dedupe keeps the first occurrence of each identifier
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
