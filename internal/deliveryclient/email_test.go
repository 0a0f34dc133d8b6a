package deliveryclient

import (
	"strings"
	"testing"
)

func TestRenderSubject_SubstitutesPlaceholders(t *testing.T) {
	got := RenderSubject("Daily Digest ${date_zh} (#${ts})", "2026年8月1日", "1785628800")
	want := "Daily Digest 2026年8月1日 (#1785628800)"
	if got != want {
		t.Fatalf("RenderSubject() = %q, want %q", got, want)
	}
}

func TestRenderSubject_NoPlaceholdersIsNoop(t *testing.T) {
	got := RenderSubject("Static Subject", "2026年8月1日", "1785628800")
	if got != "Static Subject" {
		t.Fatalf("RenderSubject() = %q, want unchanged string", got)
	}
}

func TestBuildMIMEMessage_IncludesBothPartsAndUnsubscribeHeader(t *testing.T) {
	msg := EmailMessage{
		To:              "reader@example.com",
		Subject:         "Digest",
		HTMLBody:        "<p>hello</p>",
		TextBody:        "hello",
		ListUnsubscribe: "<https://example.com/unsubscribe>",
	}

	raw := string(buildMIMEMessage("digest@inkwell.dev", msg))

	if !strings.Contains(raw, "Content-Type: text/plain") {
		t.Fatalf("expected a text/plain part, got:\n%s", raw)
	}
	if !strings.Contains(raw, "Content-Type: text/html") {
		t.Fatalf("expected a text/html part, got:\n%s", raw)
	}
	if !strings.Contains(raw, "List-Unsubscribe: <https://example.com/unsubscribe>") {
		t.Fatalf("expected the List-Unsubscribe header, got:\n%s", raw)
	}
	if !strings.Contains(raw, "<p>hello</p>") || !strings.Contains(raw, "hello") {
		t.Fatalf("expected both bodies present, got:\n%s", raw)
	}
}

func TestBuildMIMEMessage_OmitsUnsubscribeHeaderWhenEmpty(t *testing.T) {
	msg := EmailMessage{To: "reader@example.com", Subject: "Digest", HTMLBody: "<p>x</p>", TextBody: "x"}
	raw := string(buildMIMEMessage("digest@inkwell.dev", msg))
	if strings.Contains(raw, "List-Unsubscribe") {
		t.Fatalf("expected no List-Unsubscribe header, got:\n%s", raw)
	}
}
