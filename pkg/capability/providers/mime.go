package providers

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// normalizeEmail reduces `Name <addr@host>` to a lower-cased bare address.
func normalizeEmail(raw string) string {
	if raw == "" {
		return ""
	}
	if m := angleAddr.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// isAutomatedEmail reports senders that should never get an agent reply.
func isAutomatedEmail(from string, headers gjson.Result) bool {
	if from == "" {
		return true
	}
	f := strings.ToLower(from)
	if strings.Contains(f, "noreply") || strings.Contains(f, "no-reply") || strings.Contains(f, "newsletter") {
		return true
	}
	return headers.Get(`#(name=="List-Unsubscribe")`).Exists()
}

func header(headers gjson.Result, name string) string {
	return headers.Get(`#(name=="` + name + `").value`).String()
}

// extractPlainText walks a Gmail message payload and returns the first
// text/plain body, or any decodable body when no text/plain part exists.
func extractPlainText(part gjson.Result) string {
	if data := part.Get("body.data").String(); data != "" {
		return decodeBase64URL(data)
	}
	parts := part.Get("parts").Array()
	for _, p := range parts {
		if p.Get("mimeType").String() == "text/plain" {
			return extractPlainText(p)
		}
	}
	for _, p := range parts {
		if text := extractPlainText(p); text != "" {
			return text
		}
	}
	return ""
}

func decodeBase64URL(data string) string {
	trimmed := strings.TrimRight(data, "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return string(b)
	}
	if b, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil {
		return string(b)
	}
	return ""
}

type rawEmail struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// encode renders the message as RFC 2822 text, base64url encoded without
// padding as the Gmail send endpoint expects.
func (m rawEmail) encode() string {
	lines := []string{
		"To: " + m.To,
		"Subject: " + m.Subject,
		`Content-Type: text/plain; charset="UTF-8"`,
		"MIME-Version: 1.0",
	}
	if m.InReplyTo != "" {
		lines = append(lines, "In-Reply-To: "+m.InReplyTo, "References: "+m.InReplyTo)
	}
	lines = append(lines, "", m.Body)
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(lines, "\r\n")))
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
