package sentinel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/properties"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrUnauthorized       = errors.New("unauthorized access, check your client ID and secret")
	ErrMissingCredentials = errors.New("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
)

type Credential struct {
	ClientID     string
	ClientSecret string
}

// Client talks to the Copernicus Data Space Sentinel Hub APIs. Every request
// is retried, and on authorization failure the next credential is used.
type Client struct {
	BaseURL     string
	TokenURL    string
	Credentials []Credential
	Retries     int
	RetryDelay  time.Duration
	Log         logrus.FieldLogger

	// HTTPClient builds the authenticated client for a credential.
	HTTPClient func(ctx context.Context, tokenURL string, credential Credential) *http.Client
}

func oauthHTTPClient(ctx context.Context, tokenURL string, credential Credential) *http.Client {
	config := &clientcredentials.Config{
		ClientID:     credential.ClientID,
		ClientSecret: credential.ClientSecret,
		TokenURL:     tokenURL,
	}
	return config.Client(ctx)
}

func NewClient(baseURL, tokenURL string, credentials []Credential) *Client {
	return &Client{
		BaseURL:     baseURL,
		TokenURL:    tokenURL,
		Credentials: credentials,
		Retries:     10,
		RetryDelay:  5 * time.Second,
		Log:         logrus.StandardLogger(),
		HTTPClient:  oauthHTTPClient,
	}
}

// NewClientFromEnv pairs COPERNICUS_CLIENT_ID and COPERNICUS_CLIENT_SECRET
// entries by position.
func NewClientFromEnv() (*Client, error) {
	clientIDs := properties.CopernicusClientIDs()
	clientSecrets := properties.CopernicusClientSecrets()
	tokenURL := properties.CopernicusTokenURL()
	if len(clientIDs) == 0 || len(clientSecrets) == 0 || tokenURL == "" {
		return nil, ErrMissingCredentials
	}
	if len(clientIDs) != len(clientSecrets) {
		return nil, fmt.Errorf("mismatched number of client IDs (%d) and secrets (%d)", len(clientIDs), len(clientSecrets))
	}

	credentials := make([]Credential, len(clientIDs))
	for i := range clientIDs {
		credentials[i] = Credential{ClientID: clientIDs[i], ClientSecret: clientSecrets[i]}
	}
	return NewClient(properties.CopernicusAPIURL(), tokenURL, credentials), nil
}

// StatusError is returned for a non-200 response that was not retried away.
type StatusError struct {
	Status int
	Body   []byte
}

func (e StatusError) Error() string {
	prefix := string(e.Body[:min(len(e.Body), 256)])
	return fmt.Sprintf("unexpected status code %d: %s", e.Status, prefix)
}

func (c *Client) post(ctx context.Context, path, accept string, body []byte) ([]byte, error) {
	if len(c.Credentials) == 0 {
		return nil, ErrMissingCredentials
	}
	url := c.BaseURL + path
	retries := max(c.Retries, 1)

	var err error
	for i, credential := range c.Credentials {
		httpClient := c.HTTPClient(ctx, c.TokenURL, credential)
		var responseContent []byte
		responseContent, err = c.postWithRetries(ctx, httpClient, url, accept, body, retries)
		if err == nil {
			return responseContent, nil
		}
		var statusErr StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusBadRequest {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.Log.WithError(err).WithField("credential", i).Warn("Sentinel Hub request failed, trying next credential")
	}
	return nil, err
}

func (c *Client) postWithRetries(ctx context.Context, httpClient *http.Client, url, accept string, body []byte, retries int) ([]byte, error) {
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		var responseContent []byte
		responseContent, err = c.postOnce(ctx, httpClient, url, accept, body)
		if err == nil {
			return responseContent, nil
		}

		var statusErr StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.Status {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
			case http.StatusBadRequest:
				return nil, err
			}
		}
		c.Log.WithFields(logrus.Fields{"attempt": attempt, "url": url}).WithError(err).Warn("Sentinel Hub attempt failed")

		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to request %s after %d attempts: %w", url, retries, err)
}

func (c *Client) postOnce(ctx context.Context, httpClient *http.Client, url, accept string, body []byte) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	if accept != "" {
		request.Header.Set("Accept", accept)
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseContent, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, StatusError{Status: response.StatusCode, Body: responseContent}
	}
	return responseContent, nil
}
