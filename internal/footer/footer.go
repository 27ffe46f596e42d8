package footer

import "strings"

// Injector appends the compliance footer to outbound emails. The base URL is
// injected at construction so the pipeline can be tested without environment
// lookups.
type Injector struct {
	baseURL string
}

func New(baseURL string) *Injector {
	return &Injector{baseURL: strings.TrimRight(baseURL, "/")}
}

// Add returns the HTML and text bodies with the footer appended. The footer
// always carries a manage-preferences link. The unsubscribe link is included
// only when an unsubscribe token is known; system emails without a preference
// row omit it.
//
// The HTML footer is inserted immediately before </body> when the body has one,
// otherwise appended.
func (i *Injector) Add(html, text, token string) (string, string) {
	return i.addHTML(html, token), i.addText(text, token)
}

func (i *Injector) addHTML(html, token string) string {
	var b strings.Builder
	b.WriteString(`<div style="margin-top:32px;padding-top:16px;border-top:1px solid #e2e2e2;font-size:12px;color:#888888;">`)
	b.WriteString(`<p>You are receiving this email because you have an account on FeatherLink.</p>`)
	b.WriteString(`<p><a href="` + i.preferencesURL() + `">Manage email preferences</a>`)
	if token != "" {
		b.WriteString(` &middot; <a href="` + i.unsubscribeURL(token) + `">Unsubscribe</a>`)
	}
	b.WriteString(`</p></div>`)

	block := b.String()
	if idx := lastClosingBodyIndex(html); idx >= 0 {
		return html[:idx] + block + html[idx:]
	}
	return html + block
}

// lastClosingBodyIndex finds the last </body> tag regardless of case. The
// haystack is matched in place: lowering it first can change byte offsets on
// non-ASCII input and splice the footer into the middle of user content.
func lastClosingBodyIndex(s string) int {
	const tag = "</body>"
	for i := len(s) - len(tag); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(tag)], tag) {
			return i
		}
	}
	return -1
}

func (i *Injector) addText(text, token string) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n--\nYou are receiving this email because you have an account on FeatherLink.\n")
	b.WriteString("Manage email preferences: " + i.preferencesURL() + "\n")
	if token != "" {
		b.WriteString("Unsubscribe: " + i.unsubscribeURL(token) + "\n")
	}
	return b.String()
}

func (i *Injector) preferencesURL() string {
	return i.baseURL + "/settings/notifications"
}

func (i *Injector) unsubscribeURL(token string) string {
	return i.baseURL + "/unsubscribe?token=" + token
}
