package notify

import (
	"context"
	"fmt"
	"time"
)

// CodeMailer delivers one-time codes through a Notifier.
type CodeMailer struct {
	notifier Notifier
}

func NewCodeMailer(n Notifier) CodeMailer {
	if n == nil {
		n = Nop{}
	}
	return CodeMailer{notifier: n}
}

func (m CodeMailer) SendCode(ctx context.Context, email, code string, expiresIn time.Duration) error {
	return m.notifier.Send(ctx, email, "Your Verification Code", Data{
		Title:   "Verification Code",
		Message: fmt.Sprintf("Enter this code on your phone keypad. It expires in %d minutes.", int(expiresIn.Minutes())),
		Fields: []Field{
			{Label: "Code", Value: code},
		},
	})
}
