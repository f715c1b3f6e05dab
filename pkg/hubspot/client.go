package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.hubapi.com"

// Endpoint is HubSpot's OAuth 2.0 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://app.hubspot.com/oauth/authorize",
	TokenURL:  "https://api.hubapi.com/oauth/v1/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Scopes requested when an owner connects HubSpot.
var Scopes = []string{
	"crm.objects.contacts.read",
	"crm.objects.contacts.write",
}

// OAuthConfig returns the oauth2 config for the HubSpot app.
func OAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint:     Endpoint,
	}
}

// Contact is a CRM contact with the properties the advisor reads.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// Name joins first and last name, trimming whatever is missing.
func (c Contact) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type contactObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

func (o contactObject) toContact() Contact {
	return Contact{
		ID:        o.ID,
		FirstName: o.Properties["firstname"],
		LastName:  o.Properties["lastname"],
		Email:     o.Properties["email"],
	}
}

type Client struct {
	baseURL string
}

// NewClient creates a CRM client. An empty baseURL targets api.hubapi.com.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/")}
}

// ListContacts returns the first page of CRM contacts.
func (c *Client) ListContacts(ctx context.Context, ts oauth2.TokenSource) ([]Contact, error) {
	var page struct {
		Results []contactObject `json:"results"`
	}
	if err := c.do(ctx, ts, http.MethodGet, "/crm/v3/objects/contacts?properties=firstname,lastname,email", nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	contacts := make([]Contact, 0, len(page.Results))
	for _, r := range page.Results {
		contacts = append(contacts, r.toContact())
	}
	return contacts, nil
}

// CreateContact creates a contact. name is split at the first space into
// first and last name.
func (c *Client) CreateContact(ctx context.Context, ts oauth2.TokenSource, name, email string) (*Contact, error) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	body := map[string]interface{}{
		"properties": map[string]string{
			"email":     email,
			"firstname": first,
			"lastname":  strings.TrimSpace(last),
		},
	}

	var created contactObject
	if err := c.do(ctx, ts, http.MethodPost, "/crm/v3/objects/contacts", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	contact := created.toContact()
	return &contact, nil
}

func (c *Client) do(ctx context.Context, ts oauth2.TokenSource, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := oauth2.NewClient(ctx, ts).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hubspot returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
