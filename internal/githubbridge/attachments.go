package githubbridge

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// attachmentURLPattern finds bare http(s) URLs in a comment/issue body —
// the bridge treats any such URL as a candidate attachment (spec §4.8
// step 6a).
var attachmentURLPattern = regexp.MustCompile(`https?://\S+`)

// ExtractAttachmentURLs returns every candidate attachment URL found in
// body, in order of appearance.
func ExtractAttachmentURLs(body string) []string {
	return attachmentURLPattern.FindAllString(body, -1)
}

// AttachmentPolicy bounds which attachment URLs the run task will
// download (spec §4.8 step 6a's two-stage policy: URL allow/deny-list
// by extension, then a content-type allow-list applied to the actual
// response).
type AttachmentPolicy struct {
	AllowedExtensions   []string // e.g. ".png", ".txt"; empty means no extension restriction
	DeniedExtensions    []string
	AllowedContentTypes []string // e.g. "image/png"; empty means no content-type restriction
	MaxBytes            int
}

// EvaluateAttachmentURLPolicy is the first policy stage: reject a URL
// before any network call is made, purely from its extension.
func EvaluateAttachmentURLPolicy(policy AttachmentPolicy, rawURL string) (ok bool, reasonCode string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, "invalid_url"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, denied := range policy.DeniedExtensions {
		if ext == strings.ToLower(denied) {
			return false, "denied_extension"
		}
	}
	if len(policy.AllowedExtensions) > 0 {
		allowed := false
		for _, a := range policy.AllowedExtensions {
			if ext == strings.ToLower(a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, "extension_not_allowed"
		}
	}
	return true, "ok"
}

// EvaluateAttachmentContentTypePolicy is the second policy stage,
// applied once the response has actually been fetched.
func EvaluateAttachmentContentTypePolicy(policy AttachmentPolicy, contentType string, bodyLen int) (ok bool, reasonCode string) {
	if policy.MaxBytes > 0 && bodyLen > policy.MaxBytes {
		return false, "too_large"
	}
	if len(policy.AllowedContentTypes) == 0 {
		return true, "ok"
	}
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	for _, allowed := range policy.AllowedContentTypes {
		if base == strings.ToLower(allowed) {
			return true, "ok"
		}
	}
	return false, "content_type_not_allowed"
}

// AttachmentFilenameFromURL derives a stable filename for a downloaded
// attachment from its source URL's final path segment, falling back to
// a content-hash-derived name when the URL has none.
func AttachmentFilenameFromURL(rawURL string, body []byte) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			return base
		}
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

// ContentHash returns the hex sha256 digest of body, recorded alongside
// every accepted attachment download (spec §4.8 step 6a).
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
