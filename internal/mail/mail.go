// Package mail delivers confirmation and recovery codes. Delivery is fire-and-forget from the
// caller's point of view: failures are logged, never retried.
package mail

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Dispatcher sends codes to a principal's email address.
type Dispatcher interface {
	SendConfirmationCode(ctx context.Context, email, code string) error
	SendRecoveryCode(ctx context.Context, email, code string) error
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Templates renders the two messages around links to the public frontend.
type Templates struct {
	// LinkBaseURL is the frontend origin, e.g. https://blog.example.com.
	LinkBaseURL string
}

// Confirmation renders the registration-confirmation email for code.
func (t Templates) Confirmation(email, code string) Message {
	link := t.link("confirm-email", code)
	return Message{
		To:      email,
		Subject: "Confirm your registration",
		HTML: fmt.Sprintf(`<h1>Thank you for your registration</h1>
<p>To finish registration please follow the link below:
<a href="%s">complete registration</a>
</p>`, html.EscapeString(link)),
	}
}

// Recovery renders the password-recovery email for code.
func (t Templates) Recovery(email, code string) Message {
	link := t.link("password-recovery", code)
	return Message{
		To:      email,
		Subject: "Password recovery",
		HTML: fmt.Sprintf(`<h1>Password recovery</h1>
<p>To finish password recovery please follow the link below:
<a href="%s">recovery password</a>
</p>`, html.EscapeString(link)),
	}
}

func (t Templates) link(path, code string) string {
	base := strings.TrimSuffix(t.LinkBaseURL, "/")
	param := "code"
	if path == "password-recovery" {
		param = "recoveryCode"
	}
	return base + "/" + path + "?" + param + "=" + url.QueryEscape(code)
}
