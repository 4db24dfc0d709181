package service

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
)

// mailClient is the subset of *sendgrid.Client used to send mail.
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridEmailService struct {
	client mailClient
	from   *mail.Email
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return newSendGridEmailService(sendgrid.NewSendClient(apiKey), fromEmail, fromName)
}

func newSendGridEmailService(client mailClient, fromEmail, fromName string) *sendGridEmailService {
	return &sendGridEmailService{
		client: client,
		from:   mail.NewEmail(fromName, fromEmail),
	}
}

func (s *sendGridEmailService) send(ctx context.Context, to, toName, subject, plainText, htmlContent string) error {
	logger.ExternalServiceCall("sendgrid", "send", "to", to, "subject", subject)

	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail(toName, to), plainText, htmlContent)
	response, err := s.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err, "to", to)

	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *sendGridEmailService) SendPurchaseReceipt(ctx context.Context, to, name string, lead *domain.Lead, price decimal.Decimal) error {
	subject := fmt.Sprintf("Your lead purchase: %s", lead.Name)
	plainText := fmt.Sprintf("Hello %s,\n\nYou purchased the lead %s (%s, %s) for %s credits.\n\nContact: %s %s\n\nBest regards,\nThe Lead Market Team",
		name, lead.Name, lead.Category, lead.Region, price.StringFixed(2), lead.Email, lead.Phone)
	htmlContent := fmt.Sprintf(`
		<html>
			<body>
				<h2>Lead purchased</h2>
				<p>You purchased <strong>%s</strong> for <strong>%s</strong> credits.</p>
				<p>Contact: %s %s</p>
			</body>
		</html>
	`, lead.Name, price.StringFixed(2), lead.Email, lead.Phone)

	return s.send(ctx, to, name, subject, plainText, htmlContent)
}

func (s *sendGridEmailService) SendDepositReceipt(ctx context.Context, to, name string, amount, balance decimal.Decimal) error {
	subject := "Credits added to your account"
	plainText := fmt.Sprintf("Hello %s,\n\n%s credits were added to your account. Your balance is now %s.\n\nBest regards,\nThe Lead Market Team",
		name, amount.StringFixed(2), balance.StringFixed(2))
	htmlContent := fmt.Sprintf(`
		<html>
			<body>
				<h2>Credits added</h2>
				<p><strong>%s</strong> credits were added. Balance: <strong>%s</strong>.</p>
			</body>
		</html>
	`, amount.StringFixed(2), balance.StringFixed(2))

	return s.send(ctx, to, name, subject, plainText, htmlContent)
}

func (s *sendGridEmailService) SendLedgerAlert(ctx context.Context, to string, mismatch *domain.LedgerMismatchError) error {
	subject := fmt.Sprintf("[ALERT] Ledger mismatch on account %d", mismatch.AccountID)
	plainText := fmt.Sprintf("Account %d has been frozen.\n\n%s", mismatch.AccountID, mismatch.Error())
	htmlContent := fmt.Sprintf("<html><body><p>Account %d has been frozen.</p><pre>%s</pre></body></html>",
		mismatch.AccountID, html.EscapeString(mismatch.Error()))
	return s.send(ctx, to, "", subject, plainText, htmlContent)
}

// logEmailService is used when outbound email is disabled.
type logEmailService struct{}

func NewLogEmailService() EmailService {
	return logEmailService{}
}

func (logEmailService) SendPurchaseReceipt(_ context.Context, to, _ string, lead *domain.Lead, price decimal.Decimal) error {
	logger.Info("Email disabled, purchase receipt not sent", "to", to, "leadID", lead.ID, "price", price.String())
	return nil
}

func (logEmailService) SendDepositReceipt(_ context.Context, to, _ string, amount, _ decimal.Decimal) error {
	logger.Info("Email disabled, deposit receipt not sent", "to", to, "amount", amount.String())
	return nil
}

func (logEmailService) SendLedgerAlert(_ context.Context, to string, mismatch *domain.LedgerMismatchError) error {
	logger.Info("Email disabled, ledger alert not sent", "to", to, "accountID", mismatch.AccountID)
	return nil
}
