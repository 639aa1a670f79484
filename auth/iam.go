package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/watsonhub/ibmcloudkit/tool"
)

// apikeyGrantType is the OAuth2-style grant IBM IAM uses for API key
// exchange.
const apikeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"

const maxErrorBody = 4 << 10

// iamClient is the sole client of the IAM token exchange endpoint.
type iamClient struct {
	tokenURL   string
	httpClient *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// exchange performs one token-exchange request. Status classification:
// 400/401/403 mean the credential was rejected (auth, no retry); 429 and
// 5xx are transient; network failures are transient.
func (c *iamClient) exchange(ctx context.Context, apiKey string) (Token, error) {
	form := url.Values{
		"grant_type": {apikeyGrantType},
		"apikey":     {apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, tool.WrapErr(tool.KindConfig, err, "build token exchange request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, tool.WrapErr(tool.KindTransient, err, "token exchange request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		switch {
		case resp.StatusCode == http.StatusBadRequest,
			resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden:
			return Token{}, &tool.Error{
				Kind:    tool.KindAuth,
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("identity provider rejected the API key: %s", iamErrorText(resp.StatusCode, body)),
			}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return Token{}, &tool.Error{
				Kind:    tool.KindTransient,
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("token exchange returned %d", resp.StatusCode),
			}
		default:
			return Token{}, &tool.Error{
				Kind:    tool.KindAuth,
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("unexpected token exchange status %d", resp.StatusCode),
			}
		}
	}

	// The success body carries the full JWT, which grows with the account's
	// memberships; it is read without the error-body cap.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, tool.WrapErr(tool.KindTransient, err, "read token exchange response")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, tool.WrapErr(tool.KindTransient, err, "decode token exchange response")
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return Token{}, tool.Errorf(tool.KindAuth, "token exchange response missing access_token or expires_in")
	}

	return Token{
		Value:     tr.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// iamErrorText extracts IAM's errorMessage when the body is the documented
// error shape, falling back to the raw (truncated) body. The API key itself
// never appears in IAM error responses.
func iamErrorText(status int, body []byte) string {
	var iamErr struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &iamErr); err == nil && iamErr.ErrorMessage != "" {
		if iamErr.ErrorCode != "" {
			return fmt.Sprintf("%s (%s)", iamErr.ErrorMessage, iamErr.ErrorCode)
		}
		return iamErr.ErrorMessage
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	return text
}
