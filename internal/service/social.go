package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	facebookIdentityURL = "https://graph.facebook.com/me?fields=id,name,email,locale,picture"
	googleIdentityURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// socialTokenVerifier resolves provider access tokens against the
// providers' userinfo endpoints. A token the provider rejects yields
// a nil identity, not an error; errors are reserved for transport
// failures.
type socialTokenVerifier struct {
	baseURLs map[string]string
}

func NewSocialTokenVerifier() SocialVerifier {
	return &socialTokenVerifier{
		baseURLs: map[string]string{
			"facebook": facebookIdentityURL,
			"google":   googleIdentityURL,
		},
	}
}

func (v *socialTokenVerifier) Verify(ctx context.Context, provider, token string) (*SocialIdentity, error) {
	url, ok := v.baseURLs[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", provider, err)
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		// Provider rejected the token.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s identity endpoint returned %d", provider, resp.StatusCode)
	}

	return decodeIdentity(provider, resp.Body)
}

// decodeIdentity maps the provider payload to a SocialIdentity. The
// payload shapes differ: facebook nests the avatar URL one level
// deeper than google, and google calls the subject "sub".
func decodeIdentity(provider string, body io.Reader) (*SocialIdentity, error) {
	switch provider {
	case "facebook":
		var payload struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Email   string `json:"email"`
			Locale  string `json:"locale"`
			Picture struct {
				Data struct {
					URL string `json:"url"`
				} `json:"data"`
			} `json:"picture"`
		}
		err := json.NewDecoder(body).Decode(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode facebook identity: %w", err)
		}
		if payload.ID == "" {
			return nil, nil
		}
		return &SocialIdentity{
			ID:     payload.ID,
			Name:   payload.Name,
			Email:  payload.Email,
			Locale: payload.Locale,
			Avatar: payload.Picture.Data.URL,
		}, nil

	case "google":
		var payload struct {
			Sub     string `json:"sub"`
			Name    string `json:"name"`
			Email   string `json:"email"`
			Locale  string `json:"locale"`
			Picture string `json:"picture"`
		}
		err := json.NewDecoder(body).Decode(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode google identity: %w", err)
		}
		if payload.Sub == "" {
			return nil, nil
		}
		return &SocialIdentity{
			ID:     payload.Sub,
			Name:   payload.Name,
			Email:  payload.Email,
			Locale: payload.Locale,
			Avatar: payload.Picture,
		}, nil
	}

	return nil, ErrUnknownProvider
}
