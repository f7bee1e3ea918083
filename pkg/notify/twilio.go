package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/orders"
	"github.com/harunnryd/cipher/pkg/redact"
)

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	StoreName  string `mapstructure:"store_name"`
}

// TwilioSMS sends receipts as SMS through the Twilio REST API. The shopper
// identity is used as the destination number.
type TwilioSMS struct {
	cfg    TwilioConfig
	client messageCreator
	logger *slog.Logger
}

func NewTwilioSMS(cfg TwilioConfig, logger *slog.Logger) (*TwilioSMS, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("missing twilio credentials")
	}
	if cfg.From == "" {
		return nil, errors.New("twilio from number required")
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "Khan's Tech Store"
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSMS{
		cfg:    cfg,
		client: rest.Api,
		logger: logging.NewComponentLogger(logger, "notify.twilio"),
	}, nil
}

func (n *TwilioSMS) SendReceipt(ctx context.Context, identity string, order orders.Order) error {
	to := strings.TrimSpace(identity)
	if !looksLikePhone(to) {
		n.logger.Debug("receipt_skipped", "order_id", order.ID, redact.IdentityAttr(to))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(n.cfg.From)
	params.SetBody(ReceiptText(n.cfg.StoreName, order))
	resp, err := n.client.CreateMessage(params)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("twilio create message: %w", err), errorsx.ReasonNotifySend)
	}
	if resp == nil || resp.Sid == nil {
		return errorsx.New(errorsx.ReasonNotifySend, "missing message sid")
	}
	n.logger.Info("receipt_sent", "order_id", order.ID, "message_sid", *resp.Sid, redact.IdentityAttr(to))
	return nil
}

// looksLikePhone accepts E.164 numbers such as +15551234567.
func looksLikePhone(s string) bool {
	if len(s) < 8 || len(s) > 16 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
