package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// ErrDelivery indicates the provider did not accept the message.
var ErrDelivery = errors.New("email delivery failed")

// Message is a single transactional email.
type Message struct {
	ToName   string
	ToEmail  string
	Subject  string
	Text     string
	HTML     string
	Category string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers mail through the SendGrid v3 API.
type SendGrid struct {
	api      sendgridAPI
	from     *mail.Email
	timeout  time.Duration
	logg     *logger.Logger
	disabled bool
}

// NewSendGrid builds a sender. With no API key configured the sender logs
// and drops messages so local environments do not need credentials.
func NewSendGrid(cfg config.SendgridConfig, logg *logger.Logger) (*SendGrid, error) {
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid default from address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &SendGrid{
		from:    mail.NewEmail(cfg.FromName, from),
		timeout: timeout,
		logg:    logg,
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		s.disabled = true
		return s, nil
	}
	s.api = sendgrid.NewSendClient(key)
	return s, nil
}

// Send delivers msg, failing with ErrDelivery on a non-2xx provider response.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return fmt.Errorf("%w: recipient address missing", ErrDelivery)
	}
	if s.disabled {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"to":      msg.ToEmail,
				"subject": msg.Subject,
			}), "sendgrid disabled; email not sent")
		}
		return nil
	}

	email := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.ToEmail), msg.Text, msg.HTML)
	if msg.Category != "" {
		email.AddCategories(msg.Category)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.api.SendWithContext(sendCtx, email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if resp == nil {
		return fmt.Errorf("%w: empty response", ErrDelivery)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
