package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
)

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type message struct {
	Subject      string      `json:"subject"`
	Body         itemBody    `json:"body"`
	ToRecipients []recipient `json:"toRecipients"`
}

type sendMailRequest struct {
	Message         message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

// SendNotification отправляет письмо получателям; ссылки добавляются в конец тела.
//
// Delegated-сессия отправляет от имени пользователя (/me/sendMail),
// app-only — от почтового ящика sender.
func (s *Session) SendNotification(ctx context.Context, recipients []string, subject, body string, links []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidConfig)
	}

	endpoint := s.cfg.GraphURL + "/me/sendMail"
	if !s.delegated {
		if s.cfg.Sender == "" {
			return fmt.Errorf("%w: sender is required for app-only mail", ErrInvalidConfig)
		}
		endpoint = fmt.Sprintf("%s/users/%s/sendMail", s.cfg.GraphURL, url.PathEscape(s.cfg.Sender))
	}

	msg := sendMailRequest{
		Message: message{
			Subject: subject,
			Body: itemBody{
				ContentType: "HTML",
				Content:     renderBody(body, links),
			},
		},
		SaveToSentItems: true,
	}
	for _, r := range recipients {
		msg.Message.ToRecipients = append(msg.Message.ToRecipients, recipient{EmailAddress: emailAddress{Address: r}})
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	resp, err := s.do(ctx, request{
		method:      http.MethodPost,
		url:         endpoint,
		body:        data,
		contentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	resp.Body.Close()

	s.logger.Info("notification sent", "recipients", len(recipients), "subject", subject)
	return nil
}

// renderBody экранирует текст и добавляет ссылки отдельными абзацами.
func renderBody(body string, links []string) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(strings.ReplaceAll(html.EscapeString(body), "\n", "<br>"))
	b.WriteString("</p>")
	for _, link := range links {
		if link == "" {
			continue
		}
		esc := html.EscapeString(link)
		fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, esc, esc)
	}
	return b.String()
}
