package types

import "regexp"

var replyPrefix = regexp.MustCompile(`(?i)^Re:\s*`)

// Email is one unread message as returned by a capability provider.
type Email struct {
	ID        string `json:"id" yaml:"id"`
	ThreadID  string `json:"threadId" yaml:"threadId"`
	MessageID string `json:"messageId,omitempty" yaml:"messageId,omitempty"`
	From      string `json:"from" yaml:"from"`
	FromEmail string `json:"fromEmail,omitempty" yaml:"fromEmail,omitempty"`
	Subject   string `json:"subject" yaml:"subject"`
	Body      string `json:"body" yaml:"body"`
	Snippet   string `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

// Field looks up a property by the names the block editor exposes.
func (e Email) Field(name string) (string, bool) {
	switch name {
	case "id":
		return e.ID, true
	case "threadId", "thread_id":
		return e.ThreadID, true
	case "messageId", "message_id":
		return e.MessageID, true
	case "from":
		return e.From, true
	case "fromEmail", "from_email":
		return e.FromEmail, true
	case "subject":
		return e.Subject, true
	case "body":
		return e.Body, true
	case "snippet":
		return e.Snippet, true
	default:
		return "", false
	}
}

// Preview returns the snippet, or the body when no snippet was provided.
func (e Email) Preview() string {
	if e.Snippet != "" {
		return e.Snippet
	}
	return e.Body
}

// ReplyRequest carries the arguments of a send_reply capability call.
type ReplyRequest struct {
	EmailID   string `json:"emailId"`
	Body      string `json:"replyBody"`
	Subject   string `json:"subject"`
	To        string `json:"to"`
	ThreadID  string `json:"threadId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// SendResult is what a provider reports after a send_reply call. Simulated
// is set when the provider validated the reply but did not deliver it.
type SendResult struct {
	Simulated bool   `json:"testMode"`
	MessageID string `json:"messageId,omitempty"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// AccountStatus describes the email account connection of a provider.
type AccountStatus struct {
	Connected bool   `json:"connected"`
	UserEmail string `json:"userEmail,omitempty"`
	TestMode  bool   `json:"testMode"`
	AuthURL   string `json:"authUrl,omitempty"`
}

// ReplySubject prefixes subject with a single "Re: ".
func ReplySubject(subject string) string {
	return "Re: " + replyPrefix.ReplaceAllString(subject, "")
}
