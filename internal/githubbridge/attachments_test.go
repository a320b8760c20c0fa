package githubbridge

import (
	"reflect"
	"testing"
)

func TestExtractAttachmentURLs(t *testing.T) {
	body := "See the log at https://example.com/log.txt and the image https://cdn.example.com/shot.png please."
	got := ExtractAttachmentURLs(body)
	want := []string{"https://example.com/log.txt", "https://cdn.example.com/shot.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractAttachmentURLsNone(t *testing.T) {
	got := ExtractAttachmentURLs("no links here")
	if len(got) != 0 {
		t.Fatalf("expected no urls, got %v", got)
	}
}

func TestEvaluateAttachmentURLPolicyDeniedExtensionRejectsBeforeFetch(t *testing.T) {
	policy := AttachmentPolicy{DeniedExtensions: []string{".exe", ".sh"}}
	ok, reason := EvaluateAttachmentURLPolicy(policy, "https://example.com/payload.exe")
	if ok {
		t.Fatal("expected a denied extension to be rejected")
	}
	if reason != "denied_extension" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateAttachmentURLPolicyAllowListRejectsUnlisted(t *testing.T) {
	policy := AttachmentPolicy{AllowedExtensions: []string{".png", ".jpg"}}
	ok, reason := EvaluateAttachmentURLPolicy(policy, "https://example.com/report.pdf")
	if ok {
		t.Fatal("expected an extension outside the allow-list to be rejected")
	}
	if reason != "extension_not_allowed" {
		t.Fatalf("unexpected reason: %q", reason)
	}

	ok, reason = EvaluateAttachmentURLPolicy(policy, "https://example.com/shot.png")
	if !ok || reason != "ok" {
		t.Fatalf("expected allowed extension to pass, got ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluateAttachmentURLPolicyInvalidURL(t *testing.T) {
	ok, reason := EvaluateAttachmentURLPolicy(AttachmentPolicy{}, "://not a url")
	if ok || reason != "invalid_url" {
		t.Fatalf("expected invalid_url rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestEvaluateAttachmentContentTypePolicyAfterFetch(t *testing.T) {
	policy := AttachmentPolicy{AllowedContentTypes: []string{"image/png"}, MaxBytes: 10}

	ok, reason := EvaluateAttachmentContentTypePolicy(policy, "image/png; charset=binary", 5)
	if !ok || reason != "ok" {
		t.Fatalf("expected allowed content-type to pass, got ok=%v reason=%q", ok, reason)
	}

	ok, reason = EvaluateAttachmentContentTypePolicy(policy, "application/octet-stream", 5)
	if ok || reason != "content_type_not_allowed" {
		t.Fatalf("expected content type rejection, got ok=%v reason=%q", ok, reason)
	}

	ok, reason = EvaluateAttachmentContentTypePolicy(policy, "image/png", 50)
	if ok || reason != "too_large" {
		t.Fatalf("expected too_large rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestAttachmentFilenameFromURLFallsBackToHash(t *testing.T) {
	name := AttachmentFilenameFromURL("https://example.com/", []byte("hello"))
	if name == "" {
		t.Fatal("expected a non-empty fallback filename")
	}
	if name == "/" {
		t.Fatal("fallback filename should not be the bare path separator")
	}
}

func TestAttachmentFilenameFromURLUsesPathBase(t *testing.T) {
	name := AttachmentFilenameFromURL("https://example.com/dir/shot.png", []byte("x"))
	if name != "shot.png" {
		t.Fatalf("expected shot.png, got %q", name)
	}
}

func TestContentHashIsStableAndDeterministic(t *testing.T) {
	a := ContentHash([]byte("same bytes"))
	b := ContentHash([]byte("same bytes"))
	if a != b {
		t.Fatalf("expected deterministic hash, got %q vs %q", a, b)
	}
	c := ContentHash([]byte("different bytes"))
	if a == c {
		t.Fatal("expected different content to hash differently")
	}
}
