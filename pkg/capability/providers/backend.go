package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/tidwall/gjson"
)

const defaultBackendURL = "http://localhost:3001"

// BackendClient talks to the agent backend server, which owns the Gmail
// connection and the AI credentials.
type BackendClient struct {
	capability.CallCounter

	baseURL string
	http    *jsonDoer
	logger  types.Logger
}

func NewBackendClient(s capability.Settings) (*BackendClient, error) {
	if s.Logger == nil {
		s.Logger = log.Nop()
	}
	baseURL := strings.TrimRight(s.Config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBackendURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("base_url must start with http:// or https://, got %q", baseURL)
	}

	timeout := parseTimeout(s.Config.Timeout, s.Logger)
	headers := map[string]string{}
	if s.Config.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.Config.APIKey
	}

	return &BackendClient{
		baseURL: baseURL,
		http: &jsonDoer{
			client:  &http.Client{Timeout: timeout},
			logger:  s.Logger,
			headers: headers,
		},
		logger: s.Logger,
	}, nil
}

func (c *BackendClient) FetchUnreadEmails(ctx context.Context) ([]types.Email, error) {
	body, err := c.http.do(ctx, http.MethodGet, c.baseURL+"/api/emails/unread", nil)
	if err != nil {
		return nil, capabilityError(capability.OpFetchUnreadEmails, err)
	}

	raw := gjson.GetBytes(body, "emails")
	if !raw.Exists() || raw.Type == gjson.Null {
		return []types.Email{}, nil
	}
	var emails []types.Email
	if err := json.Unmarshal([]byte(raw.Raw), &emails); err != nil {
		return nil, capability.NewError(capability.OpFetchUnreadEmails, "", fmt.Errorf("decoding emails: %w", err))
	}
	return emails, nil
}

func (c *BackendClient) GenerateText(ctx context.Context, input, task string) (string, error) {
	c.CountAICall()
	body, err := c.http.do(ctx, http.MethodPost, c.baseURL+"/api/ai", map[string]string{
		"input": input,
		"task":  task,
	})
	if err != nil {
		return "", capabilityError(capability.OpGenerateText, err)
	}

	res := gjson.GetManyBytes(body, "text", "groqApiCalls")
	c.logger.Debug().Int("server_ai_calls", int(res[1].Int())).Msg("AI call completed")
	return res[0].String(), nil
}

func (c *BackendClient) SendReply(ctx context.Context, req types.ReplyRequest) (*types.SendResult, error) {
	body, err := c.http.do(ctx, http.MethodPost, c.baseURL+"/api/emails/send", req)
	if err != nil {
		return nil, capabilityError(capability.OpSendReply, err)
	}

	if ok := gjson.GetBytes(body, "success"); ok.Exists() && !ok.Bool() {
		return nil, capability.NewError(capability.OpSendReply, "Send failed", nil)
	}

	details := gjson.GetBytes(body, "emailDetails")
	result := &types.SendResult{
		Simulated: gjson.GetBytes(body, "testMode").Bool(),
		MessageID: gjson.GetBytes(body, "messageId").String(),
		To:        req.To,
		Subject:   req.Subject,
		Body:      req.Body,
	}
	if details.Exists() {
		if v := details.Get("to").String(); v != "" {
			result.To = v
		}
		if v := details.Get("subject").String(); v != "" {
			result.Subject = v
		}
		if v := details.Get("body").String(); v != "" {
			result.Body = v
		}
	}
	return result, nil
}

func (c *BackendClient) MarkRead(ctx context.Context, emailID string) (bool, error) {
	_, err := c.http.do(ctx, http.MethodPost, c.baseURL+"/api/emails/markread", map[string]string{
		"emailId": emailID,
	})
	if err != nil {
		return false, capabilityError(capability.OpMarkRead, err)
	}
	return true, nil
}

func (c *BackendClient) EmailStatus(ctx context.Context) (types.AccountStatus, error) {
	body, err := c.http.do(ctx, http.MethodGet, c.baseURL+"/api/gmail/status", nil)
	if err != nil {
		return types.AccountStatus{}, capabilityError(capability.OpEmailStatus, err)
	}
	res := gjson.GetManyBytes(body, "connected", "userEmail", "testMode")
	return types.AccountStatus{
		Connected: res[0].Bool(),
		UserEmail: res[1].String(),
		TestMode:  res[2].Bool(),
		AuthURL:   c.baseURL + "/api/gmail/auth",
	}, nil
}

// capabilityError keeps a server-provided message verbatim and otherwise
// falls back to the transport error text.
func capabilityError(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return capability.NewError(op, se.Message, err)
	}
	return capability.NewError(op, "", err)
}
