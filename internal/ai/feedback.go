package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/alfawz/hifz/pkg/models"
)

// ErrDisabled is returned by New when no API key is configured
var ErrDisabled = errors.New("OPENAI_API_KEY is not set")

// Config holds the chat model configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Review describes one finished review for the feedback prompt
type Review struct {
	Unit       models.Unit
	Confidence float64
	Quality    int
	Passed     bool
	Interval   int
	Mastered   bool
}

// FeedbackWriter writes short encouragement after a recitation
type FeedbackWriter struct {
	client *openai.Client
	cfg    Config
}

// New creates a feedback writer. It returns ErrDisabled without an API key.
func New(cfg Config) (*FeedbackWriter, error) {
	if cfg.APIKey == "" {
		return nil, ErrDisabled
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 120
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &FeedbackWriter{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Enabled reports whether the writer can reach a model
func (f *FeedbackWriter) Enabled() bool {
	return f != nil && f.client != nil
}

// Write asks the model for feedback on a review
func (f *FeedbackWriter) Write(ctx context.Context, r Review) (string, error) {
	if !f.Enabled() {
		return "", ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: f.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a gentle Qur'an memorization teacher. " +
					"Reply with one or two short sentences of feedback for a student. " +
					"Do not quote the ayah text.",
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt(r)},
		},
		MaxTokens:   f.cfg.MaxTokens,
		Temperature: f.cfg.Temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// WriteWithFallback returns model feedback, or a canned message when the
// model is disabled or fails
func (f *FeedbackWriter) WriteWithFallback(ctx context.Context, r Review) string {
	if f.Enabled() {
		if text, err := f.Write(ctx, r); err == nil && text != "" {
			return text
		}
	}
	return Fallback(r)
}

func prompt(r Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The student recited %s ayah %d (%s).\n",
		models.SurahName(r.Unit.SurahID), r.Unit.AyahID, r.Unit)
	fmt.Fprintf(&b, "Teacher confidence: %.0f%%, quality %d of 5.\n", r.Confidence*100, r.Quality)
	if r.Passed {
		fmt.Fprintf(&b, "Next review in %d day(s).", r.Interval)
	} else {
		b.WriteString("The recitation needs more work; it will be reviewed again tomorrow.")
	}
	if r.Mastered {
		b.WriteString(" The ayah is now mastered.")
	}
	return b.String()
}

// Fallback is the canned feedback used without a model
func Fallback(r Review) string {
	switch {
	case r.Mastered:
		return "Masha'Allah, this ayah is firmly memorized. Keep revising it."
	case !r.Passed:
		return "Keep going. Listen to the ayah again and recite it tomorrow."
	case r.Quality >= 5:
		return fmt.Sprintf("Excellent recitation. See you in %d day(s).", r.Interval)
	default:
		return fmt.Sprintf("Good work. Review it again in %d day(s).", r.Interval)
	}
}
