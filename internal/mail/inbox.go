package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/pkg/logger"
)

// Inbox is a logged-in mailbox session
type Inbox interface {
	// UnseenSubjects returns the subjects of unread messages
	UnseenSubjects(ctx context.Context) ([]string, error)
	// Logout ends the session. Safe to call more than once.
	Logout() error
}

// Dialer opens inbox sessions
type Dialer interface {
	Dial(ctx context.Context) (Inbox, error)
}

// IMAPDialer opens IMAP sessions. Port 993 uses implicit TLS.
type IMAPDialer struct {
	cfg config.EmailConfig
	log *logger.Logger
}

// NewIMAPDialer creates a new IMAP dialer
func NewIMAPDialer(cfg config.EmailConfig, log *logger.Logger) *IMAPDialer {
	if cfg.IMAPPort == 0 {
		cfg.IMAPPort = 993
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPDialer{
		cfg: cfg,
		log: log.WithComponent("imap"),
	}
}

// Dial connects, logs in and selects the mailbox
func (d *IMAPDialer) Dial(ctx context.Context) (Inbox, error) {
	if d.cfg.Username == "" || d.cfg.Password == "" {
		return nil, errs.Configuration("EMAIL_USER and EMAIL_PASS are required to read mail")
	}
	if d.cfg.IMAPHost == "" {
		return nil, errs.Configuration("EMAIL_IMAP is required to read mail")
	}
	inbox := &IMAPInbox{dialer: d}
	if err := inbox.connect(ctx); err != nil {
		return nil, err
	}
	return inbox, nil
}

// IMAPInbox is one IMAP session. After a failed command the connection is
// dropped and re-established on the next call.
type IMAPInbox struct {
	dialer *IMAPDialer
	c      *client.Client
	closed bool
}

func (i *IMAPInbox) connect(ctx context.Context) error {
	cfg := i.dialer.cfg
	addr := net.JoinHostPort(cfg.IMAPHost, strconv.Itoa(cfg.IMAPPort))
	nd := &net.Dialer{Timeout: 30 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		nd.Deadline = deadline
	}

	var (
		c   *client.Client
		err error
	)
	if cfg.IMAPPort == 993 {
		c, err = client.DialWithDialerTLS(nd, addr, &tls.Config{ServerName: cfg.IMAPHost})
	} else {
		c, err = client.DialWithDialer(nd, addr)
	}
	if err != nil {
		return errs.Wrap(errs.ErrTransient, "imap dial "+addr, err)
	}
	c.Timeout = 30 * time.Second

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return fmt.Errorf("imap login failed: %w", err)
	}
	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		c.Logout()
		return errs.Wrap(errs.ErrTransient, "imap select "+cfg.Mailbox, err)
	}

	i.c = c
	i.dialer.log.Debug().Str("addr", addr).Msg("IMAP session opened")
	return nil
}

// UnseenSubjects searches for unread messages and fetches their envelopes
func (i *IMAPInbox) UnseenSubjects(ctx context.Context) ([]string, error) {
	if i.closed {
		return nil, fmt.Errorf("imap session closed")
	}
	if i.c == nil {
		if err := i.connect(ctx); err != nil {
			return nil, err
		}
	}

	subjects, err := i.unseen()
	if err != nil {
		i.drop()
		return nil, errs.Wrap(errs.ErrTransient, "imap poll", err)
	}
	return subjects, nil
}

func (i *IMAPInbox) unseen() ([]string, error) {
	// NOOP refreshes the mailbox so new mail is visible to SEARCH
	if err := i.c.Noop(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := i.c.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- i.c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	subjects := make([]string, 0, len(ids))
	for msg := range messages {
		if msg.Envelope != nil {
			subjects = append(subjects, msg.Envelope.Subject)
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return subjects, nil
}

func (i *IMAPInbox) drop() {
	if i.c != nil {
		i.c.Logout()
		i.c = nil
	}
}

// Logout ends the session
func (i *IMAPInbox) Logout() error {
	if i.closed {
		return nil
	}
	i.closed = true
	if i.c == nil {
		return nil
	}
	err := i.c.Logout()
	i.c = nil
	if err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	i.dialer.log.Debug().Msg("IMAP session closed")
	return nil
}

var (
	_ Dialer = (*IMAPDialer)(nil)
	_ Inbox  = (*IMAPInbox)(nil)
)
