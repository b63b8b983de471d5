package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer delivers through the Resend HTTP API
type ResendMailer struct {
	client   *fasthttp.Client
	apiKey   string
	from     string
	endpoint string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		client: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(resendPayload{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
		ReplyTo: email.ReplyTo,
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.SetBody(body)

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := m.client.DoTimeout(req, resp, timeout); err != nil {
		return &DeliveryError{Err: fmt.Errorf("resend request failed: %w", err), Retryable: true}
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return nil
	}
	return &DeliveryError{
		Err:       fmt.Errorf("resend responded %d: %s", status, resp.Body()),
		Retryable: status == fasthttp.StatusTooManyRequests || status >= 500,
	}
}
