package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const (
	defaultGmailAPIURL    = "https://gmail.googleapis.com/gmail/v1/users/me"
	defaultTokenFile      = "gmail_tokens.json"
	defaultMaxEmails      = 10
	unreadQuery           = "is:unread category:primary -from:me"
	minReplyLength        = 50
	maxBodyLength         = 2000
	maxSnippetLength      = 200
	gmailNotConnectedText = "Gmail not connected"
)

var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/userinfo.email",
}

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// GmailClient reads and answers mail through the Gmail REST API using a
// stored OAuth2 token, and generates text through an OpenAI-compatible
// completion endpoint.
type GmailClient struct {
	capability.CallCounter

	apiURL     string
	tokenPath  string
	oauth      *oauth2.Config
	timeout    time.Duration
	completion *completionClient
	logger     types.Logger

	testMode  bool
	allowed   map[string]struct{}
	maxEmails int

	mu        sync.Mutex
	api       *jsonDoer
	userEmail string
	processed map[string]struct{}
}

func NewGmailClient(s capability.Settings) (*GmailClient, error) {
	if s.Logger == nil {
		s.Logger = log.Nop()
	}
	cfg := s.Config

	tokenPath := cfg.TokenFile
	if tokenPath == "" {
		tokenPath = defaultTokenFile
	}
	tokenPath, err := core.ResolvePathFromWorkflow(s.WorkflowDir, tokenPath)
	if err != nil {
		return nil, fmt.Errorf("resolving token_file: %w", err)
	}

	apiURL := strings.TrimRight(cfg.BaseURL, "/")
	if apiURL == "" {
		apiURL = defaultGmailAPIURL
	}

	testMode := true
	if cfg.TestMode != nil {
		testMode = *cfg.TestMode
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedRecipients))
	for _, r := range cfg.AllowedRecipients {
		if addr := normalizeEmail(r); addr != "" {
			allowed[addr] = struct{}{}
		}
	}

	maxEmails := cfg.MaxEmails
	if maxEmails <= 0 {
		maxEmails = defaultMaxEmails
	}

	timeout := parseTimeout(cfg.Timeout, s.Logger)

	c := &GmailClient{
		apiURL:    apiURL,
		tokenPath: tokenPath,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleEndpoint,
			Scopes:       gmailScopes,
		},
		timeout:   timeout,
		logger:    s.Logger,
		testMode:  testMode,
		allowed:   allowed,
		maxEmails: maxEmails,
		processed: map[string]struct{}{},
	}

	if cfg.APIKey != "" {
		c.completion, err = newCompletionClient(cfg.AIBaseURL, cfg.APIKey, cfg.Model, cfg.RequestsPerSecond, &http.Client{Timeout: timeout}, s.Logger)
		if err != nil {
			return nil, err
		}
	} else {
		s.Logger.Warn().Str("provider", cfg.Name).Msg("No 'api_key' configured, generate_text will fail")
	}

	return c, nil
}

// connect loads the token file on first use. It reports false without error
// while the account has not been connected yet.
func (c *GmailClient) connect() (*jsonDoer, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, true, nil
	}

	tok, userEmail, err := loadToken(c.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if tok.AccessToken == "" {
		return nil, false, nil
	}

	src := &persistingSource{
		base:   c.oauth.TokenSource(context.Background(), tok),
		path:   c.tokenPath,
		last:   tok.AccessToken,
		logger: c.logger,
	}
	hc := oauth2.NewClient(context.Background(), src)
	hc.Timeout = c.timeout

	c.api = &jsonDoer{client: hc, logger: c.logger}
	c.userEmail = userEmail
	c.logger.Info().Str("user_email", userEmail).Msg("Loaded Gmail credentials")
	return c.api, true, nil
}

func (c *GmailClient) requireAPI(op string) (*jsonDoer, error) {
	api, ok, err := c.connect()
	if err != nil {
		return nil, capability.NewError(op, "", fmt.Errorf("loading Gmail token: %w", err))
	}
	if !ok {
		return nil, capability.NewError(op, gmailNotConnectedText, nil)
	}
	return api, nil
}

func (c *GmailClient) isProcessed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[id]
	return ok
}

func (c *GmailClient) FetchUnreadEmails(ctx context.Context) ([]types.Email, error) {
	api, err := c.requireAPI(capability.OpFetchUnreadEmails)
	if err != nil {
		return nil, err
	}

	listURL := fmt.Sprintf("%s/messages?q=%s&maxResults=%d", c.apiURL, url.QueryEscape(unreadQuery), c.maxEmails)
	body, err := api.do(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, capabilityError(capability.OpFetchUnreadEmails, err)
	}

	emails := []types.Email{}
	for _, id := range gjson.GetBytes(body, "messages.#.id").Array() {
		if c.isProcessed(id.String()) {
			continue
		}

		msg, err := api.do(ctx, http.MethodGet, fmt.Sprintf("%s/messages/%s?format=full", c.apiURL, url.PathEscape(id.String())), nil)
		if err != nil {
			return nil, capabilityError(capability.OpFetchUnreadEmails, err)
		}

		payload := gjson.GetBytes(msg, "payload")
		headers := payload.Get("headers")
		from := header(headers, "From")
		if isAutomatedEmail(from, headers) {
			c.logger.Debug().Str("from", from).Msg("Skipping automated sender")
			continue
		}

		text := extractPlainText(payload)
		if text == "" {
			continue
		}

		subject := header(headers, "Subject")
		if subject == "" {
			subject = "(No Subject)"
		}

		emails = append(emails, types.Email{
			ID:        id.String(),
			ThreadID:  gjson.GetBytes(msg, "threadId").String(),
			MessageID: header(headers, "Message-ID"),
			From:      from,
			FromEmail: normalizeEmail(from),
			Subject:   subject,
			Body:      truncateRunes(text, maxBodyLength),
			Snippet:   truncateRunes(text, maxSnippetLength),
		})
	}
	return emails, nil
}

func (c *GmailClient) GenerateText(ctx context.Context, input, task string) (string, error) {
	if c.completion == nil {
		return "", capability.NewError(capability.OpGenerateText, "text generation is not configured: provider has no 'api_key'", nil)
	}
	c.CountAICall()
	text, err := c.completion.complete(ctx, input, task)
	if err != nil {
		return "", capabilityError(capability.OpGenerateText, err)
	}
	return text, nil
}

func (c *GmailClient) SendReply(ctx context.Context, req types.ReplyRequest) (*types.SendResult, error) {
	api, err := c.requireAPI(capability.OpSendReply)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if _, dup := c.processed[req.EmailID]; dup {
		c.mu.Unlock()
		return nil, capability.NewError(capability.OpSendReply, "Email already processed", nil)
	}
	c.mu.Unlock()

	to := normalizeEmail(req.To)
	clean := strings.TrimSpace(req.Body)
	if clean == "" {
		return nil, capability.NewError(capability.OpSendReply, "Reply body missing or invalid", nil)
	}
	if n := len([]rune(clean)); n < minReplyLength {
		return nil, capability.NewError(capability.OpSendReply, fmt.Sprintf("Reply too short (%d chars). Min: %d", n, minReplyLength), nil)
	}

	c.mu.Lock()
	c.processed[req.EmailID] = struct{}{}
	c.mu.Unlock()

	if err := c.markRead(ctx, api, req.EmailID); err != nil {
		return nil, capabilityError(capability.OpSendReply, err)
	}

	result := &types.SendResult{
		To:      to,
		Subject: types.ReplySubject(req.Subject),
		Body:    req.Body,
	}

	if _, ok := c.allowed[to]; c.testMode && !ok {
		c.logger.Info().Str("to", to).Str("subject", result.Subject).Msg("Test mode: simulated sending reply")
		result.Simulated = true
		return result, nil
	}

	raw := rawEmail{To: to, Subject: result.Subject, Body: req.Body, InReplyTo: req.MessageID}
	payload := map[string]string{"raw": raw.encode()}
	if req.ThreadID != "" {
		payload["threadId"] = req.ThreadID
	}
	body, err := api.do(ctx, http.MethodPost, c.apiURL+"/messages/send", payload)
	if err != nil {
		return nil, capabilityError(capability.OpSendReply, err)
	}

	result.MessageID = gjson.GetBytes(body, "id").String()
	c.logger.Info().Str("to", to).Str("message_id", result.MessageID).Msg("Reply sent")
	return result, nil
}

func (c *GmailClient) MarkRead(ctx context.Context, emailID string) (bool, error) {
	api, err := c.requireAPI(capability.OpMarkRead)
	if err != nil {
		return false, err
	}
	if err := c.markRead(ctx, api, emailID); err != nil {
		return false, capabilityError(capability.OpMarkRead, err)
	}
	return true, nil
}

func (c *GmailClient) markRead(ctx context.Context, api *jsonDoer, emailID string) error {
	_, err := api.do(ctx, http.MethodPost, fmt.Sprintf("%s/messages/%s/modify", c.apiURL, url.PathEscape(emailID)), map[string][]string{
		"removeLabelIds": {"UNREAD"},
	})
	return err
}

func (c *GmailClient) EmailStatus(ctx context.Context) (types.AccountStatus, error) {
	_, ok, err := c.connect()
	if err != nil {
		return types.AccountStatus{}, capability.NewError(capability.OpEmailStatus, "", fmt.Errorf("loading Gmail token: %w", err))
	}

	status := types.AccountStatus{Connected: ok, TestMode: c.testMode}
	c.mu.Lock()
	status.UserEmail = c.userEmail
	c.mu.Unlock()
	if c.oauth.ClientID != "" {
		status.AuthURL = c.oauth.AuthCodeURL("agentblocks", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return status, nil
}

// tokenFile is the on-disk layout shared with the backend server.
type tokenFile struct {
	Tokens    storedToken `json:"tokens"`
	UserEmail string      `json:"userEmail,omitempty"`
}

type storedToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	// ExpiryDate is in unix milliseconds.
	ExpiryDate int64 `json:"expiry_date,omitempty"`
}

func loadToken(path string) (*oauth2.Token, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, "", fmt.Errorf("parsing token file %q: %w", path, err)
	}

	tok := &oauth2.Token{
		AccessToken:  tf.Tokens.AccessToken,
		RefreshToken: tf.Tokens.RefreshToken,
		TokenType:    tf.Tokens.TokenType,
	}
	if tf.Tokens.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(tf.Tokens.ExpiryDate)
	}
	return tok, tf.UserEmail, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	var tf tokenFile
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &tf)
	}

	tf.Tokens.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		tf.Tokens.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		tf.Tokens.TokenType = tok.TokenType
	}
	if !tok.Expiry.IsZero() {
		tf.Tokens.ExpiryDate = tok.Expiry.UnixMilli()
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing token file %q: %w", path, err)
	}
	return nil
}

// persistingSource writes refreshed tokens back to the token file.
type persistingSource struct {
	base   oauth2.TokenSource
	path   string
	logger types.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := saveToken(p.path, tok); err != nil {
			p.logger.Warn().Err(err).Msg("Could not save refreshed Gmail token")
		} else {
			p.logger.Info().Msg("Gmail token refreshed and saved")
		}
	}
	return tok, nil
}
