// Package filter holds the intake transports that feed raw messages into the draft pipeline.
package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-reply-drafter/internal/core"
	"github.com/mikey/llm-reply-drafter/internal/ports"
	"go.uber.org/zap"
)

// AccountResolver maps a recipient address to the account it belongs to
type AccountResolver interface {
	GetAccountByEmail(ctx context.Context, address string) (*core.Account, error)
}

// SMTPOptions configures the content filter
type SMTPOptions struct {
	ListenAddress  string
	Domain         string
	Reinject       bool
	ReinjectAddr   string
	ReinjectPort   int
	ProcessTimeout time.Duration
}

// SMTPFilter is a Postfix content filter. Messages are passed back unchanged and a draft
// is produced in the background for every recipient that belongs to a known account.
type SMTPFilter struct {
	pipeline ports.DraftPipeline
	accounts AccountResolver
	opts     SMTPOptions
	logger   *zap.Logger

	server   *smtp.Server
	listener net.Listener
	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	// base is cancelled by Stop to abort in-flight drafts
	base   context.Context
	cancel context.CancelFunc
}

// NewSMTPFilter creates a new content filter
func NewSMTPFilter(pipeline ports.DraftPipeline, accounts AccountResolver, opts SMTPOptions, logger *zap.Logger) *SMTPFilter {
	if opts.Domain == "" {
		opts.Domain = "localhost"
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 2 * time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &SMTPFilter{
		pipeline: pipeline,
		accounts: accounts,
		opts:     opts,
		logger:   logger,
		base:     base,
		cancel:   cancel,
	}
}

// Start starts listening for messages
func (f *SMTPFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.opts.ListenAddress
	f.server.Domain = f.opts.Domain
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	l, err := net.Listen("tcp", f.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.opts.ListenAddress, err)
	}
	f.listener = l

	f.logger.Info("SMTP intake starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := f.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound listen address
func (f *SMTPFilter) Addr() string {
	if f.listener == nil {
		return f.opts.ListenAddress
	}
	return f.listener.Addr().String()
}

// Stop closes the server and waits for in-flight drafts
func (f *SMTPFilter) Stop() error {
	var err error
	if f.server != nil {
		err = f.server.Close()
	}
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.wg.Wait()
	f.cancel()
	return err
}

// ProcessEmail drafts a response synchronously
func (f *SMTPFilter) ProcessEmail(ctx context.Context, accountID string, raw []byte) *core.DraftResult {
	return f.pipeline.Process(ctx, accountID, raw)
}

// resolveAccounts returns the distinct account ids among the envelope recipients
func (f *SMTPFilter) resolveAccounts(ctx context.Context, recipients []string) []string {
	seen := map[string]bool{}
	var ids []string
	for _, rcpt := range recipients {
		account, err := f.accounts.GetAccountByEmail(ctx, strings.ToLower(rcpt))
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			f.logger.Warn("Failed to resolve recipient account", zap.String("recipient", rcpt), zap.Error(err))
			continue
		}
		if !seen[account.ID] {
			seen[account.ID] = true
			ids = append(ids, account.ID)
		}
	}
	return ids
}

// draftAsync runs the pipeline for each account in the background
func (f *SMTPFilter) draftAsync(sender string, recipients []string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		f.logger.Warn("Intake stopping, message not drafted", zap.String("sender", sender))
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ctx, cancel := context.WithTimeout(f.base, f.opts.ProcessTimeout)
		defer cancel()

		for _, accountID := range f.resolveAccounts(ctx, recipients) {
			res := f.pipeline.Process(ctx, accountID, raw)
			if !res.Success {
				f.logger.Warn("Draft not created",
					zap.String("sender", sender),
					zap.String("account_id", accountID),
					zap.String("error_code", string(res.ErrorCode)),
					zap.String("error", res.Error))
				continue
			}
			f.logger.Info("Processed email",
				zap.String("sender", sender),
				zap.String("account_id", accountID),
				zap.String("draft_id", res.Draft.ID),
				zap.String("action", string(res.Draft.Action)))
		}
	}()
}

// reinject sends the message back to Postfix on the configured port
func (f *SMTPFilter) reinject(sender string, recipients []string, data []byte) error {
	addr := fmt.Sprintf("%s:%d", f.opts.ReinjectAddr, f.opts.ReinjectPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}

	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// the message is already accepted
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *SMTPFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// AuthPlain rejects authentication, the filter only talks to Postfix
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data reinjects the message unchanged and schedules drafting
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	if s.filter.opts.Reinject {
		if err := s.filter.reinject(s.sender, s.recipients, raw); err != nil {
			s.filter.logger.Error("Failed to send email back to Postfix",
				zap.Error(err),
				zap.String("sender", s.sender))
			return err
		}
	} else {
		s.filter.logger.Warn("Postfix reinjection disabled, message is only drafted")
	}

	recipients := append([]string(nil), s.recipients...)
	s.filter.draftAsync(s.sender, recipients, raw)
	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
