// Package notify composes and sends the preview and summary emails.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/linkedin-autopost/internal/mail"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

var previewHTML = template.Must(template.New("preview").Parse(`<html>
  <body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 16px;">
    <div style="max-width: 600px; margin: 0 auto; background: #ffffff; padding: 24px; border-radius: 8px;">
      <h2 style="color:#0a66c2; margin-top:0;">📌 Preview your LinkedIn post</h2>
      <p style="font-size: 16px; color:#333;"><strong>{{.Title}}</strong></p>
      <p style="font-size: 14px; color:#555;">Click the button below to open the post preview in your browser:</p>
      <p style="text-align:center; margin: 24px 0;">
        <a href="{{.PreviewURL}}" style="display:inline-block; padding:12px 24px; background:#0a66c2; color:#ffffff; text-decoration:none; border-radius:6px; font-weight:bold;">View Preview</a>
      </p>
      <hr style="border:none; border-top:1px solid #eee; margin:24px 0;" />
      <p style="font-size: 13px; color:#777; line-height:1.5;">
        After reviewing, reply to this email with:<br/>
        <code style="background:#f0f0f0; padding:4px 6px; border-radius:4px;">{{.Token}}</code><br/>
        Your bot will then post it automatically to your LinkedIn profile.
      </p>
    </div>
  </body>
</html>
`))

const previewText = `Preview for: %s

Preview URL:
%s

After reviewing, reply to this email with:

%s

to post to LinkedIn at the scheduled time.
`

// Summary is the final status of a run
type Summary struct {
	RunID  string
	Posted bool
	Title  string
	URL    string
	Reason models.Reason
	Detail string
}

// Status is SUCCESS or NOT POSTED
func (s Summary) Status() string {
	if s.Posted {
		return "SUCCESS"
	}
	return "NOT POSTED"
}

// Notifier sends owner notifications
type Notifier struct {
	sender    mail.Sender
	to        string
	publicURL string
	now       func() time.Time
	log       *logger.Logger
}

// New creates a notifier. publicURL is the preview server base URL.
func New(sender mail.Sender, to, publicURL string, now func() time.Time, log *logger.Logger) *Notifier {
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		sender:    sender,
		to:        to,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       now,
		log:       log.WithComponent("notify"),
	}
}

// PreviewURL is the preview page of a run
func PreviewURL(base, runID string) string {
	return strings.TrimRight(base, "/") + "/preview/" + runID
}

// ComposePreview builds the preview email. The title comes from an external
// feed and is escaped in the HTML part.
func ComposePreview(to, publicURL, runID, title string) (mail.Message, error) {
	url := PreviewURL(publicURL, runID)
	token := models.ApprovalToken(runID)

	var buf bytes.Buffer
	err := previewHTML.Execute(&buf, struct {
		Title      string
		PreviewURL string
		Token      string
	}{title, url, token})
	if err != nil {
		return mail.Message{}, fmt.Errorf("failed to render preview email: %w", err)
	}

	return mail.Message{
		To:      to,
		Subject: "[Preview] LinkedIn " + runID,
		Text:    fmt.Sprintf(previewText, title, url, token),
		HTML:    buf.String(),
	}, nil
}

// ComposeSummary builds the summary email
func ComposeSummary(to string, day time.Time, s Summary) mail.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "LinkedIn auto-post summary for %s:\n\n", day.Format("2006-01-02"))
	fmt.Fprintf(&b, "Status: %s\n", s.Status())
	if s.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s (%s)\n", s.Reason.Description(), s.Reason)
	}
	fmt.Fprintf(&b, "Topic: %s\n", s.Title)
	fmt.Fprintf(&b, "Source: %s\n", s.URL)
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", s.RunID)
	}
	if s.Detail != "" {
		fmt.Fprintf(&b, "\nDetail: %s\n", s.Detail)
	}

	return mail.Message{
		To:      to,
		Subject: "[Summary] LinkedIn auto-post " + s.Status(),
		Text:    b.String(),
	}
}

// SendPreview mails the preview link and approval instructions
func (n *Notifier) SendPreview(ctx context.Context, runID, title string) error {
	msg, err := ComposePreview(n.to, n.publicURL, runID, title)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send preview: %w", err)
	}
	n.log.Info().Str("run_id", runID).Msg("Preview email sent")
	return nil
}

// SendSummary mails the final outcome
func (n *Notifier) SendSummary(ctx context.Context, s Summary) error {
	if err := n.sender.Send(ctx, ComposeSummary(n.to, n.now(), s)); err != nil {
		return fmt.Errorf("failed to send summary: %w", err)
	}
	n.log.Info().Str("run_id", s.RunID).Str("status", s.Status()).Str("reason", string(s.Reason)).Msg("Summary email sent")
	return nil
}
