package mlc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/miyoyo/CTFd-BetterPlugins/instrumentation"
	"github.com/miyoyo/CTFd-BetterPlugins/internal/util"
	"github.com/miyoyo/CTFd-BetterPlugins/providers"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
)

const (
	// maxProfileBytes caps the profile response body.
	maxProfileBytes = 1 << 20

	// maxErrorSnippet bounds how much of a failed response is kept in the error.
	maxErrorSnippet = 256
)

// exchangeCode trades the authorization code for an access token.
func (p *Provider) exchangeCode(ctx context.Context, code string) (string, error) {
	tokenURL, err := p.settings.Resolve(ctx, settings.TokenEndpoint, DefaultTokenEndpoint)
	if err != nil {
		return "", err
	}
	clientID, err := p.settings.Resolve(ctx, settings.ClientID, "")
	if err != nil {
		return "", err
	}
	clientSecret, err := p.settings.Resolve(ctx, settings.ClientSecret, "")
	if err != nil {
		return "", err
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, span := p.startSpan(ctx, "mlc.exchange_code")
	defer span.End()
	instrumentation.AddProviderAttributes(span, providerName, "exchange_code")

	start := time.Now()
	token, err := providers.ExchangeCode(ctx, cfg, p.httpClient, code)
	status := http.StatusOK
	if err != nil {
		status = 0
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = re.Response.StatusCode
		}
	}
	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrProviderStatus, status))
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordProviderAPICall(ctx, providerName, "exchange_code", status, float64(time.Since(start).Milliseconds()), err)
	}

	if err != nil {
		instrumentation.RecordError(span, err)
		return "", providers.NewError(providers.KindTokenExchange, msgTokenFailure, err)
	}
	if token.AccessToken == "" {
		return "", providers.NewError(providers.KindTokenExchange, msgTokenFailure, errors.New("response carried no access_token"))
	}

	instrumentation.SetSpanSuccess(span)
	return token.AccessToken, nil
}

// profileResponse is the body of MLC's /user endpoint.
type profileResponse struct {
	ID    subjectID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Team  *struct {
		ID   subjectID `json:"id"`
		Name string    `json:"name"`
	} `json:"team"`
}

// subjectID accepts an id encoded as either a JSON string or number.
type subjectID string

func (s *subjectID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = subjectID(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number, got %s", b)
	}
	*s = subjectID(n.String())
	return nil
}

// fetchProfile reads the player's profile with the access token.
func (p *Provider) fetchProfile(ctx context.Context, accessToken string) (*providers.Profile, error) {
	apiURL, err := p.settings.Resolve(ctx, settings.APIEndpoint, DefaultAPIEndpoint)
	if err != nil {
		return nil, err
	}

	ctx, span := p.startSpan(ctx, "mlc.fetch_profile")
	defer span.End()
	instrumentation.AddProviderAttributes(span, providerName, "fetch_profile")

	start := time.Now()
	profile, status, err := p.getProfile(ctx, apiURL, accessToken)
	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrProviderStatus, status))
	if p.instrumentation != nil {
		p.instrumentation.Metrics().RecordProviderAPICall(ctx, providerName, "fetch_profile", status, float64(time.Since(start).Milliseconds()), err)
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, providers.NewError(providers.KindProfile, msgProfileFailure, err)
	}

	instrumentation.SetSpanSuccess(span)
	return profile, nil
}

func (p *Provider) getProfile(ctx context.Context, apiURL, accessToken string) (*providers.Profile, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet*4))
		return nil, resp.StatusCode, fmt.Errorf("profile request failed with status %d: %s", resp.StatusCode, util.Snippet(body, maxErrorSnippet))
	}

	var body profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode profile: %w", err)
	}

	profile := &providers.Profile{
		ID:    string(body.ID),
		Name:  strings.TrimSpace(body.Name),
		Email: strings.TrimSpace(body.Email),
	}
	if profile.ID == "" {
		return nil, resp.StatusCode, fmt.Errorf(msgProfileMissingClaim, "id")
	}
	if profile.Email == "" {
		return nil, resp.StatusCode, fmt.Errorf(msgProfileMissingClaim, "email")
	}
	if body.Team != nil && body.Team.ID != "" {
		profile.Team = &providers.TeamClaim{
			ID:   string(body.Team.ID),
			Name: strings.TrimSpace(body.Team.Name),
		}
	}

	return profile, resp.StatusCode, nil
}
