package upload

import (
	"fmt"
	"strings"
)

// DefaultMaxBytes is the reference upload ceiling (10 MiB)
const DefaultMaxBytes = 10 * 1024 * 1024

// DefaultAllowedTypes is the reference MIME allow-list
var DefaultAllowedTypes = []string{"image/png", "image/jpeg"}

// Policy controls which files may be queued for OCR
type Policy struct {
	AllowedTypes []string
	MaxBytes     int64
}

// DefaultPolicy returns the reference PNG/JPEG, 10MB policy
func DefaultPolicy() Policy {
	return Policy{
		AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
		MaxBytes:     DefaultMaxBytes,
	}
}

// Verdict is the result of validating a file
type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

// Validate checks a file's declared MIME type and size. It has no side
// effects and depends only on (MIMEType, Size).
func (p Policy) Validate(f *File) Verdict {
	if f == nil {
		return Verdict{Error: "No file provided."}
	}
	if !p.allows(f.MIMEType) {
		return Verdict{Error: fmt.Sprintf("Invalid file type. Only %s files are allowed.", p.describeTypes())}
	}
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return Verdict{Error: fmt.Sprintf("File size exceeds %dMB limit.", p.MaxBytes/(1024*1024))}
	}
	return Verdict{IsValid: true}
}

func (p Policy) allows(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	for _, t := range p.AllowedTypes {
		if strings.ToLower(t) == mimeType {
			return true
		}
	}
	return false
}

// describeTypes renders the allow-list the way users know the formats,
// e.g. "PNG, JPG, and JPEG".
func (p Policy) describeTypes() string {
	var names []string
	for _, t := range p.AllowedTypes {
		switch strings.ToLower(t) {
		case "image/jpeg":
			names = append(names, "JPG", "JPEG")
		case "application/pdf":
			names = append(names, "PDF")
		default:
			names = append(names, strings.ToUpper(strings.TrimPrefix(t, "image/")))
		}
	}
	switch len(names) {
	case 0:
		return "no"
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}
