// Package emailworker implements component J (§4.10): polls an IMAP mailbox
// for unseen messages from the configured sender, parses the fixed
// sales-inquiry template out of each body, and publishes one broker message
// per email before marking it read.
package emailworker

import (
	"context"
	"fmt"
	"time"

	imap "github.com/BrianLeishman/go-imap"
	"github.com/inbucket/html2text"

	"github.com/kilang-desa-murni/crm/internal/brokerconsumer"
	"github.com/kilang-desa-murni/crm/pkg/config"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// Publisher is the narrow slice of brokerconsumer.Publisher the worker
// depends on, kept as an interface so tests can substitute a fake.
type Publisher interface {
	Publish(ctx context.Context, msg brokerconsumer.SiteRequestMessage) error
}

// dialer is the narrow slice of *imap.Dialer the worker depends on.
type dialer interface {
	SelectFolder(folder string) error
	GetUIDs(search string) ([]int, error)
	GetEmails(uids ...int) (map[int]*imap.Email, error)
	MarkSeen(uid int) error
	Noop() error
	Close() error
}

// Worker runs the fixed-interval IMAP poll loop.
type Worker struct {
	cfg       config.IMAPConfig
	publisher Publisher
	log       *logger.Logger
	connect   func() (dialer, error)
}

func NewWorker(cfg config.IMAPConfig, publisher Publisher, log *logger.Logger) *Worker {
	w := &Worker{cfg: cfg, publisher: publisher, log: log}
	w.connect = w.dialIMAP
	return w
}

func (w *Worker) dialIMAP() (dialer, error) {
	d, err := imap.New(w.cfg.Username, w.cfg.Password, w.cfg.Host, w.cfg.Port)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Run polls until ctx is cancelled. Connection loss triggers a bounded
// exponential-backoff reconnect on the next tick rather than an immediate
// retry loop, so a dead mailbox doesn't spin.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	const maxBackoff = 2 * time.Minute
	backoff := time.Second
	var conn dialer

	for {
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
			return ctx.Err()
		case <-ticker.C:
			if conn == nil {
				c, err := w.connect()
				if err != nil {
					w.log.Warn().Err(err).Dur("backoff", backoff).Msg("emailworker: connect failed")
					time.Sleep(backoff)
					backoff = nextBackoff(backoff, maxBackoff)
					continue
				}
				conn = c
				backoff = time.Second
			}

			if err := conn.Noop(); err != nil {
				w.log.Warn().Err(err).Msg("emailworker: keepalive failed, reconnecting")
				conn.Close()
				conn = nil
				continue
			}

			if err := w.pollOnce(ctx, conn); err != nil {
				w.log.Warn().Err(err).Msg("emailworker: poll failed, reconnecting")
				conn.Close()
				conn = nil
			}
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (w *Worker) pollOnce(ctx context.Context, conn dialer) error {
	if err := conn.SelectFolder(w.cfg.Folder); err != nil {
		return fmt.Errorf("select folder: %w", err)
	}

	uids, err := conn.GetUIDs(fmt.Sprintf(`UNSEEN FROM "%s"`, w.cfg.TargetSender))
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	emails, err := conn.GetEmails(uids...)
	if err != nil {
		return fmt.Errorf("fetch emails: %w", err)
	}

	for _, uid := range uids {
		email, ok := emails[uid]
		if !ok {
			continue
		}
		if err := w.handleEmail(ctx, conn, uid, email); err != nil {
			w.log.Warn().Err(err).Int("uid", uid).Msg("emailworker: message handling failed")
		}
	}
	return nil
}

func (w *Worker) handleEmail(ctx context.Context, conn dialer, uid int, email *imap.Email) error {
	body := email.Text
	if body == "" && email.HTML != "" {
		text, err := html2text.FromString(email.HTML)
		if err != nil {
			return fmt.Errorf("html to text: %w", err)
		}
		body = text
	}

	req := parseBody(body)
	msg := brokerconsumer.SiteRequestMessage{
		Phone:       req.Phone,
		ProductID:   req.XMLID,
		ProductName: req.Product,
		Name:        req.Name,
		Comment:     req.Comment,
	}
	if err := w.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if err := conn.MarkSeen(uid); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
