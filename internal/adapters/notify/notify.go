// Package notify posts run summaries to chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// ErrNotConfigured is returned when the notifier lacks a token or channel.
var ErrNotConfigured = errors.New("notifier not configured")

// Summary is what a notification reports about a run.
type Summary struct {
	RunID        string
	StartedAt    time.Time
	Duration     time.Duration
	Jobs         int
	Failed       int
	Applications int
	Files        int
	OutputDir    string
	Failures     []string
}

// Notifier delivers run summaries.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// SlackNotifier posts one message per run to a channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// Option configures a SlackNotifier.
type Option func(*settings)

type settings struct {
	apiURL string
}

// WithAPIURL points the client at another Slack API base URL.
func WithAPIURL(url string) Option {
	return func(s *settings) { s.apiURL = url }
}

// NewSlack returns a notifier for channel.
func NewSlack(token, channel string, opts ...Option) (*SlackNotifier, error) {
	if token == "" || channel == "" {
		return nil, ErrNotConfigured
	}
	var st settings
	for _, o := range opts {
		o(&st)
	}
	var copts []slack.Option
	if st.apiURL != "" {
		copts = append(copts, slack.OptionAPIURL(st.apiURL))
	}
	return &SlackNotifier{api: slack.New(token, copts...), channel: channel}, nil
}

// Notify posts the summary.
func (n *SlackNotifier) Notify(ctx context.Context, s Summary) error {
	text := Message(s)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, headline(s), false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

func headline(s Summary) string {
	if s.Failed > 0 {
		return fmt.Sprintf("regflow run finished with %d failed job(s)", s.Failed)
	}
	return "regflow run finished"
}

// Message renders the summary as Slack markdown.
func Message(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Run* `%s` started %s, took %s\n", s.RunID, s.StartedAt.UTC().Format(time.RFC3339), s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "*Jobs* %d (%d failed)  *Applications* %d  *Files* %d", s.Jobs, s.Failed, s.Applications, s.Files)
	if s.OutputDir != "" {
		fmt.Fprintf(&b, "\n*Output* `%s`", s.OutputDir)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n• %s", f)
	}
	return b.String()
}
