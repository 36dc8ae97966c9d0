package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"strata-waitlist/utils"
)

const mailerLiteBaseURL = "https://connect.mailerlite.com/api"

// MailerLiteClient pushes signups onto the marketing list. Everything here is
// best-effort: a missing key or a failed call logs and returns, it never gates
// a signup.
type MailerLiteClient struct {
	APIKey     string
	GroupID    string
	BaseURL    string
	HTTPClient *http.Client
}

func NewMailerLiteClient() *MailerLiteClient {
	return &MailerLiteClient{
		APIKey:     utils.Getenv("MAILERLITE_API_KEY", ""),
		GroupID:    utils.Getenv("MAILERLITE_GROUP_ID", ""),
		BaseURL:    utils.Getenv("MAILERLITE_BASE_URL", mailerLiteBaseURL),
		HTTPClient: utils.HTTPClient,
	}
}

func (c *MailerLiteClient) Enabled() bool {
	return c.APIKey != "" && c.GroupID != ""
}

// AddSubscriber subscribes an email to the configured group. An
// already-subscribed address is a success, matching how the signup flow treats
// duplicates.
func (c *MailerLiteClient) AddSubscriber(ctx context.Context, email, firstName, lastName string) error {
	if !c.Enabled() {
		return fmt.Errorf("mailerlite is not configured")
	}

	payload := map[string]interface{}{
		"email": email,
		"fields": map[string]string{
			"name":       firstName + " " + lastName,
			"first_name": firstName,
			"last_name":  lastName,
		},
		"groups": []string{c.GroupID},
		"status": "active",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/subscribers", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailerlite request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusConflict {
		return nil // already subscribed
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("mailerlite returned status %d: %s", resp.StatusCode, string(detail))
}
