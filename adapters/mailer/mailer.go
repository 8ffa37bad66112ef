// Package mailer 提供通知信的SMTP遞送。
// 分派器只決定收件人與內容，實際遞送失敗由呼叫端記錄，不影響拍賣狀態。
package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPMailer 透過SMTP寄送通知信，實作了 auction.IMailer
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer 建立一個新的SMTPMailer
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send 寄出一封純文字通知信
func (m *SMTPMailer) Send(ctx context.Context, recipient, subject, body string) error {
	const op = "SMTPMailer.Send"

	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", recipient)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	// gomail不支援context，至少在寄送前尊重取消
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("[%s] Fail to send mail, err=%w", op, err)
	}
	return nil
}

// NopMailer 在未設定SMTP時使用，丟棄所有通知
type NopMailer struct{}

// Send 直接回報成功
func (NopMailer) Send(ctx context.Context, recipient, subject, body string) error {
	return nil
}
