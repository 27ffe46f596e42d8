package footer

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const baseURL = "https://app.featherlink.in"

func TestAdd_WithoutToken(t *testing.T) {
	inj := New(baseURL)

	html, text := inj.Add("<html><body><p>Hi</p></body></html>", "Hi", "")

	for name, body := range map[string]string{"html": html, "text": text} {
		if !strings.Contains(body, baseURL+"/settings/notifications") {
			t.Errorf("%s body missing preferences link:\n%s", name, body)
		}
		if strings.Contains(body, "Unsubscribe") {
			t.Errorf("%s body must not mention unsubscribe without a token:\n%s", name, body)
		}
	}
}

func TestAdd_WithToken(t *testing.T) {
	inj := New(baseURL)

	html, text := inj.Add("<html><body><p>Hi</p></body></html>", "Hi", "abc")

	for name, body := range map[string]string{"html": html, "text": text} {
		if !strings.Contains(body, baseURL+"/settings/notifications") {
			t.Errorf("%s body missing preferences link:\n%s", name, body)
		}
		if !strings.Contains(body, "token=abc") {
			t.Errorf("%s body missing unsubscribe token link:\n%s", name, body)
		}
	}
}

func TestAdd_HTMLFooterBeforeClosingBodyTag(t *testing.T) {
	inj := New(baseURL)

	html, _ := inj.Add("<html><body><p>Hi</p></body></html>", "Hi", "abc")

	footerIdx := strings.Index(html, "Manage email preferences")
	bodyIdx := strings.Index(html, "</body>")
	if footerIdx == -1 || bodyIdx == -1 {
		t.Fatalf("footer or closing body tag missing:\n%s", html)
	}
	if footerIdx > bodyIdx {
		t.Errorf("footer inserted after </body>:\n%s", html)
	}
}

func TestAdd_HTMLWithoutBodyTagAppends(t *testing.T) {
	inj := New(baseURL)

	html, _ := inj.Add("<p>Hi</p>", "Hi", "")
	if !strings.HasPrefix(html, "<p>Hi</p>") {
		t.Errorf("original content not preserved:\n%s", html)
	}
	if !strings.Contains(html, "Manage email preferences") {
		t.Errorf("footer missing:\n%s", html)
	}
}

func TestAdd_UppercaseBodyTag(t *testing.T) {
	inj := New(baseURL)

	html, _ := inj.Add("<HTML><BODY>Hi</BODY></HTML>", "Hi", "")
	if idx := strings.Index(html, "Manage email preferences"); idx == -1 || idx > strings.Index(html, "</BODY>") {
		t.Errorf("footer not inserted before uppercase closing tag:\n%s", html)
	}
}

func TestAdd_NonASCIIBodyContentPreserved(t *testing.T) {
	inj := New(baseURL)

	html, _ := inj.Add("<html><body>İstanbul ve Köyceğiz</body></html>", "hi", "abc")

	if !utf8.ValidString(html) {
		t.Fatalf("output is not valid UTF-8:\n%s", html)
	}
	if !strings.HasPrefix(html, "<html><body>İstanbul ve Köyceğiz") {
		t.Errorf("original content corrupted:\n%s", html)
	}
	if !strings.HasSuffix(html, "</body></html>") {
		t.Errorf("closing tags corrupted:\n%s", html)
	}
	footerIdx := strings.Index(html, "Manage email preferences")
	bodyIdx := strings.Index(html, "</body>")
	if footerIdx == -1 || bodyIdx == -1 || footerIdx > bodyIdx {
		t.Errorf("footer not inserted before </body>:\n%s", html)
	}
}

func TestAdd_TrailingSlashInBaseURL(t *testing.T) {
	inj := New(baseURL + "/")

	_, text := inj.Add("", "Hi", "abc")
	if strings.Contains(text, baseURL+"//") {
		t.Errorf("double slash in generated links:\n%s", text)
	}
}
