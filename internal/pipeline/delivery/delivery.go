// Package delivery ships a rendered artifact to a pipeline's configured
// channel: an HTML email with plain-text fallback, or a Markdown chat
// notification sent to one chat or every chat the bot has joined.
package delivery

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/originpress/inkwell/internal/deliveryclient"
	"github.com/originpress/inkwell/internal/domain"
	"github.com/originpress/inkwell/internal/pipeline/writer"
	"github.com/originpress/inkwell/pkg/apierr"
	"github.com/originpress/inkwell/pkg/logger"
	"github.com/originpress/inkwell/pkg/resilience"
)

// Status values recorded on the PipelineRun produced by a delivery pass.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Config holds the pieces of delivery behavior that depend on process
// configuration rather than on any one pipeline.
type Config struct {
	// FrontendBaseURL, when non-empty, causes emails to carry a footer with
	// manage/unsubscribe links and a List-Unsubscribe header.
	FrontendBaseURL string
	// TimeZone locates "today" for the ${date_zh} subject/title substitution.
	TimeZone *time.Location
}

// Driver sends one pipeline's artifact through its configured channel.
type Driver struct {
	email deliveryclient.EmailSender
	chat  deliveryclient.ChatClient
	log   *logger.Logger
	cfg   Config
	retry resilience.Config
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithRetryConfig overrides the per-send retry policy (default: 3 attempts,
// exponential backoff).
func WithRetryConfig(cfg resilience.Config) Option {
	return func(d *Driver) { d.retry = cfg }
}

// New builds a Driver. email and chat may be nil if the process only ever
// delivers through the other channel; log is optional.
func New(email deliveryclient.EmailSender, chat deliveryclient.ChatClient, log *logger.Logger, cfg Config, opts ...Option) *Driver {
	if log == nil {
		log = logger.NewDefault()
	}
	d := &Driver{
		email: email,
		chat:  chat,
		log:   log,
		cfg:   cfg,
		retry: resilience.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Outcome summarizes one delivery pass for the PipelineRun record.
type Outcome struct {
	Status string
	Detail string
}

// Deliver ships artifact through p's configured channel.
func (d *Driver) Deliver(ctx context.Context, p domain.Pipeline, artifact writer.Artifact, now time.Time) Outcome {
	if p.Email != nil {
		return d.deliverEmail(ctx, p, artifact, now)
	}
	return d.deliverChat(ctx, p, artifact, now)
}

func (d *Driver) deliverEmail(ctx context.Context, p domain.Pipeline, artifact writer.Artifact, now time.Time) Outcome {
	dateZh, ts := localizedStamp(now, d.cfg.TimeZone)
	subject := deliveryclient.RenderSubject(p.Email.SubjectTemplate, dateZh, ts)

	htmlBody := artifact.HTMLBody
	var listUnsubscribe string
	if d.cfg.FrontendBaseURL != "" {
		manageURL := footerURL(d.cfg.FrontendBaseURL, "manage", p.Email.Email, p.ID)
		unsubscribeURL := footerURL(d.cfg.FrontendBaseURL, "unsubscribe", p.Email.Email, p.ID)
		htmlBody += fmt.Sprintf(`<hr><p><a href="%s">Manage preferences</a> | <a href="%s">Unsubscribe</a></p>`, manageURL, unsubscribeURL)
		listUnsubscribe = "<" + unsubscribeURL + ">"
	}

	msg := deliveryclient.EmailMessage{
		To:              p.Email.Email,
		Subject:         subject,
		HTMLBody:        htmlBody,
		TextBody:        artifact.TextBody,
		ListUnsubscribe: listUnsubscribe,
	}

	err := resilience.Retry(ctx, d.retry, func() error {
		return d.email.Send(ctx, msg)
	})
	if err != nil {
		d.log.WithError(err).WithField("pipeline_id", p.ID).Warn("email delivery failed")
		return Outcome{Status: StatusFailed, Detail: err.Error()}
	}
	return Outcome{Status: StatusSuccess, Detail: fmt.Sprintf("delivered to %s", p.Email.Email)}
}

func (d *Driver) deliverChat(ctx context.Context, p domain.Pipeline, artifact writer.Artifact, now time.Time) Outcome {
	dateZh, ts := localizedStamp(now, d.cfg.TimeZone)
	title := deliveryclient.RenderSubject(p.Chat.TitleTemplate, dateZh, ts)
	msg := deliveryclient.ChatMessage{Title: title, Body: artifact.Markdown}

	chatIDs, err := d.resolveChatIDs(ctx, p)
	if err != nil {
		return Outcome{Status: StatusFailed, Detail: err.Error()}
	}
	if len(chatIDs) == 0 {
		return Outcome{Status: StatusFailed, Detail: "no joined chats to deliver to"}
	}

	var succeeded, failed int
	for _, chatID := range chatIDs {
		sendErr := resilience.Retry(ctx, d.retry, func() error {
			return d.chat.Send(ctx, chatID, msg)
		})
		if sendErr != nil {
			failed++
			d.log.WithError(sendErr).WithField("pipeline_id", p.ID).WithField("chat_id", chatID).Warn("chat delivery failed")
			continue
		}
		succeeded++
	}

	switch {
	case succeeded > 0 && failed == 0:
		return Outcome{Status: StatusSuccess, Detail: fmt.Sprintf("delivered to %d chat(s)", succeeded)}
	case succeeded > 0:
		return Outcome{Status: StatusPartial, Detail: fmt.Sprintf("delivered to %d of %d chat(s)", succeeded, succeeded+failed)}
	default:
		return Outcome{Status: StatusFailed, Detail: fmt.Sprintf("delivery failed for all %d chat(s)", failed)}
	}
}

func (d *Driver) resolveChatIDs(ctx context.Context, p domain.Pipeline) ([]string, error) {
	if !p.Chat.ToAllChat {
		if p.Chat.ChatID == "" {
			return nil, apierr.Configuration("chat_id", fmt.Sprintf("pipeline %d has to_all_chat=false and no chat_id", p.ID))
		}
		return []string{p.Chat.ChatID}, nil
	}
	return d.chat.JoinedChatIDs(ctx)
}

func localizedStamp(now time.Time, tz *time.Location) (dateZh, ts string) {
	if tz == nil {
		tz = time.UTC
	}
	local := now.In(tz)
	dateZh = fmt.Sprintf("%d年%d月%d日", local.Year(), local.Month(), local.Day())
	ts = strconv.FormatInt(now.Unix(), 10)
	return dateZh, ts
}

func footerURL(base, path, email string, pipelineID int64) string {
	return fmt.Sprintf("%s/%s?email=%s&pipeline_id=%d", base, path, url.QueryEscape(email), pipelineID)
}
