// Package llm talks to a user-configured, OpenAI-compatible completion
// endpoint: model discovery with URL normalization, and persona-voiced chat
// completions over translated multi-party history.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/roundtable/backend/internal/model/chat"
	"github.com/zhouzirui/roundtable/backend/internal/model/persona"
)

// Endpoint is the configuration snapshot one request runs with. In-flight
// requests keep the snapshot they were dispatched with even if settings are
// saved meanwhile.
type Endpoint struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Discovery is the result of a successful model listing. ActiveBaseURL is
// the candidate that actually answered, so the caller can persist the
// corrected value.
type Discovery struct {
	Models        []string `json:"models"`
	ActiveBaseURL string   `json:"activeBaseUrl"`
}

// Client issues all outbound calls to the completion provider.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// candidateBaseURLs normalizes what the user typed into the ordered set of
// base URLs worth probing: the trimmed input first, then a "/v1" variant
// when the input does not already end in one.
func candidateBaseURLs(raw string) []string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return nil
	}
	if strings.HasSuffix(base, "/v1") {
		return []string{base}
	}
	return []string{base, base + "/v1"}
}

// DiscoverModels probes GET {candidate}/models until one candidate yields a
// parseable model list. An empty-but-valid list is a success with zero
// models. 401/403 aborts immediately: the key, not the URL, is wrong.
func (c *Client) DiscoverModels(ctx context.Context, baseURL, apiKey string) (Discovery, error) {
	candidates := candidateBaseURLs(baseURL)
	if len(candidates) == 0 {
		return Discovery{}, fmt.Errorf("%w: base URL is empty", ErrEndpoint)
	}

	var (
		lastNetworkErr error
		lastStatusErr  error
		lastParseErr   error
	)

	for _, candidate := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate+"/models", nil)
		if err != nil {
			return Discovery{}, fmt.Errorf("%w: %v", ErrEndpoint, err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastNetworkErr = fmt.Errorf("%w: %v", ErrNetwork, err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastNetworkErr = fmt.Errorf("%w: %v", ErrNetwork, err)
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Discovery{}, statusError(resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastStatusErr = statusError(resp.StatusCode)
			continue
		}

		models, err := decodeModelList(body)
		if err != nil {
			lastParseErr = err
			continue
		}

		log.Printf("[llm] discovered %d model(s) via %s", len(models), candidate)
		return Discovery{Models: models, ActiveBaseURL: candidate}, nil
	}

	// Nothing answered with a usable list. Prefer the most telling failure:
	// a 2xx we could not parse beats a plain non-2xx beats a dead socket.
	switch {
	case lastParseErr != nil:
		return Discovery{}, lastParseErr
	case lastStatusErr != nil:
		return Discovery{}, lastStatusErr
	default:
		return Discovery{}, lastNetworkErr
	}
}

// decodeModelList accepts the OpenAI-style {"data":[{"id":...}]} shape and
// the {"models":[{"id"|"name":...}]} variant some local runtimes serve.
func decodeModelList(body []byte) ([]string, error) {
	var envelope struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch {
	case envelope.Data != nil:
		models := make([]string, 0, len(envelope.Data))
		for _, m := range envelope.Data {
			if m.ID != "" {
				models = append(models, m.ID)
			}
		}
		return models, nil
	case envelope.Models != nil:
		models := make([]string, 0, len(envelope.Models))
		for _, m := range envelope.Models {
			switch {
			case m.ID != "":
				models = append(models, m.ID)
			case m.Name != "":
				models = append(models, m.Name)
			}
		}
		return models, nil
	default:
		return nil, fmt.Errorf("%w: no model list in response", ErrParse)
	}
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete generates a reply in the target persona's voice over the full
// translated history. A 2xx with empty content is a success with an empty
// string.
func (c *Client) Complete(ctx context.Context, ep Endpoint, target persona.Persona, history []chat.Message, participants map[string]persona.Persona) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:    ep.Model,
		Messages: BuildMessages(target, history, participants),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEndpoint, err)
	}

	base := strings.TrimRight(strings.TrimSpace(ep.BaseURL), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEndpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ep.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation is the caller's doing, not a provider failure.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp.StatusCode)
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
