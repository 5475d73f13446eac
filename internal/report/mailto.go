package report

import (
	"net/url"
	"strings"
)

// EncodeComponent percent-encodes s for a mailto header value. Spaces become
// %20 rather than '+', which mail clients would show literally, and every
// line break (CRLF, CR or LF) becomes a single %0A.
func EncodeComponent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// MailtoLink builds "mailto:<to>?subject=...&body=...". The address is used
// as given apart from surrounding whitespace.
func MailtoLink(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("mailto:")
	b.WriteString(strings.TrimSpace(to))
	b.WriteString("?subject=")
	b.WriteString(EncodeComponent(subject))
	b.WriteString("&body=")
	b.WriteString(EncodeComponent(body))
	return b.String()
}
