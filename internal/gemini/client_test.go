package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/ledger"
)

type step struct {
	reply string
	err   error
}

type fakeGenerator struct {
	steps []step
	calls int
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if f.calls >= len(f.steps) {
		return nil, errors.New("unexpected call")
	}
	s := f.steps[f.calls]
	f.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: s.reply}}}}},
	}, nil
}

func newTestClient(gens ...*fakeGenerator) *sdkClient {
	backends := make([]backend, 0, len(gens))
	for i, g := range gens {
		backends = append(backends, backend{index: i, gen: g})
	}
	cfg := config.GeminiConfig{ModelName: "test-model", MaxRetries: 1, RetryDelay: 0, Timeout: time.Second}
	return newSDKClient(backends, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var ec = ledger.ExtractionContext{DefaultTopicID: 77, SentAt: time.Date(2025, 2, 27, 11, 55, 0, 0, time.UTC)}

func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		g := &fakeGenerator{steps: []step{{reply: `{"phone":"+380501112233","started":true,"stopped":false,"started_time":"11:50","stopped_time":null,"topic_id":null}`}}}
		raw, err := newTestClient(g).Extract(context.Background(), "+380501112233 встал 11:50", ec)
		require.NoError(t, err)
		assert.Equal(t, ledger.PhoneID("380501112233"), raw.Phone)
		assert.True(t, raw.Started)
		assert.Equal(t, "11:50", raw.StartedTime)
		assert.Equal(t, int64(77), raw.TopicID)
	})

	t.Run("retries server errors", func(t *testing.T) {
		t.Parallel()
		g := &fakeGenerator{steps: []step{
			{err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}},
			{reply: `{"phone":"111111111","started":false,"stopped":true}`},
		}}
		raw, err := newTestClient(g).Extract(context.Background(), "111111111 слетел", ec)
		require.NoError(t, err)
		assert.True(t, raw.Stopped)
		assert.Equal(t, 2, g.calls)
	})

	t.Run("quota moves to next key", func(t *testing.T) {
		t.Parallel()
		first := &fakeGenerator{steps: []step{{err: &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}}}}
		second := &fakeGenerator{steps: []step{{reply: `{"phone":"222222222","started":true}`}}}
		raw, err := newTestClient(first, second).Extract(context.Background(), "222222222 +", ec)
		require.NoError(t, err)
		assert.Equal(t, ledger.PhoneID("222222222"), raw.Phone)
		assert.Equal(t, 1, first.calls)
		assert.Equal(t, 1, second.calls)
	})

	t.Run("all keys exhausted", func(t *testing.T) {
		t.Parallel()
		quota := genai.APIError{Code: 429}
		c := newTestClient(&fakeGenerator{steps: []step{{err: quota}}}, &fakeGenerator{steps: []step{{err: quota}}})
		_, err := c.Extract(context.Background(), "x", ec)
		assert.ErrorIs(t, err, ErrOracleUnavailable)
		assert.ErrorIs(t, err, ErrQuotaExhausted)
	})

	t.Run("other errors fail closed without rotation", func(t *testing.T) {
		t.Parallel()
		first := &fakeGenerator{steps: []step{{err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}}}}
		second := &fakeGenerator{steps: []step{{reply: `{}`}}}
		_, err := newTestClient(first, second).Extract(context.Background(), "x", ec)
		assert.ErrorIs(t, err, ErrOracleUnavailable)
		assert.Equal(t, 0, second.calls)
	})

	t.Run("reply without json", func(t *testing.T) {
		t.Parallel()
		g := &fakeGenerator{steps: []step{{reply: "I cannot help with that."}}}
		_, err := newTestClient(g).Extract(context.Background(), "x", ec)
		assert.ErrorIs(t, err, ErrOracleUnavailable)
		assert.ErrorIs(t, err, ErrNoJSON)
	})
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		text  string
		want  ledger.RawExtraction
	}{
		{
			name:  "fenced with prose",
			reply: "Here you go:\n```json\n{\"phone\": \"7913 000-00-00\", \"started\": true, \"started_time\": \"12:30\"}\n```\nDone.",
			want:  ledger.RawExtraction{Phone: "79130000000", Started: true, StartedTime: "12:30", TopicID: 5},
		},
		{
			name:  "array is merged",
			reply: `[{"phone":"111111111","started":true,"started_time":"11:50"},{"phone":null,"stopped":true,"stopped_time":"11:55"}]`,
			want:  ledger.RawExtraction{Phone: "111111111", Started: true, Stopped: true, StartedTime: "11:50", StoppedTime: "11:55", TopicID: 5},
		},
		{
			name:  "legacy event field",
			reply: `{"phone": 79130000000, "event": "stopped", "event_time": "13:05", "topic_id": 2}`,
			want:  ledger.RawExtraction{Phone: "79130000000", Stopped: true, StoppedTime: "13:05", TopicID: 2},
		},
		{
			name:  "string flags and topic from text",
			reply: `{"phone":"null","started":"true","stopped":"false","topic_id":"null"}`,
			text:  "встал id: 12",
			want:  ledger.RawExtraction{Started: true, TopicID: 12},
		},
		{
			name:  "braces inside strings",
			reply: `{"phone":"1{2}3","started":false,"stopped":false} trailing }`,
			want:  ledger.RawExtraction{Phone: "123", TopicID: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseResponse(tt.reply, tt.text, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no json", func(t *testing.T) {
		t.Parallel()
		_, err := ParseResponse("nothing here", "", 5)
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("unterminated", func(t *testing.T) {
		t.Parallel()
		_, err := ParseResponse(`{"phone": "1"`, "", 5)
		assert.ErrorIs(t, err, ErrNoJSON)
	})
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()
	assert.True(t, isQuotaError(genai.APIError{Code: 429}))
	assert.True(t, isQuotaError(&genai.APIError{Status: "RESOURCE_EXHAUSTED"}))
	assert.False(t, isQuotaError(errors.New("boom")))
	assert.True(t, isRetriable(genai.APIError{Code: 500}))
	assert.False(t, isRetriable(genai.APIError{Code: 429}))
}
