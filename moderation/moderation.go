// Package moderation screens user generated text before it is stored.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	Logger "github.com/playlog/backend/utils/log"
)

// ErrContentRejected means the text was flagged and must not be stored.
var ErrContentRejected = errors.New("content rejected by moderation")

type Moderator interface {
	// Check returns ErrContentRejected (possibly wrapped) when text is flagged.
	Check(ctx context.Context, text string) error
}

// NoopModerator accepts everything.
type NoopModerator struct{}

func (NoopModerator) Check(ctx context.Context, text string) error {
	return nil
}

// WordListModerator rejects text containing any of its words, matched case
// insensitively on word boundaries.
type WordListModerator struct {
	words map[string]bool
}

func NewWordListModerator(words []string) *WordListModerator {
	m := &WordListModerator{words: map[string]bool{}}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			m.words[w] = true
		}
	}
	return m
}

func (m *WordListModerator) Check(ctx context.Context, text string) error {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		if m.words[tok] {
			return errors.Wrapf(ErrContentRejected, "matched word list")
		}
	}
	return nil
}

type checkRequest struct {
	Text string `json:"text"`
}

type checkResponse struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories"`
}

// HttpModerator asks a remote moderation endpoint. The endpoint receives
// {"text": ...} and answers {"flagged": bool, "categories": [...]}.
type HttpModerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHttpModerator(endpoint string, apiKey string, timeout time.Duration) *HttpModerator {
	return &HttpModerator{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (m *HttpModerator) Check(ctx context.Context, text string) error {
	body, err := json.Marshal(checkRequest{Text: text})
	if err != nil {
		return errors.Wrap(err, "encode moderation request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build moderation request")
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	res, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call moderation endpoint")
	}
	defer res.Body.Close()

	payload, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "read moderation response")
	}
	if res.StatusCode >= 300 {
		Logger.Log.Errorf("moderation endpoint returned %d: %s", res.StatusCode, string(payload))
		return errors.Errorf("moderation endpoint returned %d", res.StatusCode)
	}

	var decoded checkResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return errors.Wrap(err, "decode moderation response")
	}
	if decoded.Flagged {
		return errors.Wrapf(ErrContentRejected, "flagged as %s", strings.Join(decoded.Categories, ","))
	}
	return nil
}
