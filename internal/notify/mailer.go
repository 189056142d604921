package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"

	"github.com/mailersend/mailersend-go"
)

// emailSender is the part of the MailerSend client the Mailer uses.
type emailSender interface {
	NewMessage() *mailersend.Message
	Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error)
}

// Mailer is a Notifier that emails each message through MailerSend.
// Recipients without an email address are skipped.
type Mailer struct {
	email     emailSender
	fromEmail string
	fromName  string
}

// NewMailer builds a Mailer from a MailerSend API key.
func NewMailer(apiKey, fromEmail, fromName string) *Mailer {
	ms := mailersend.NewMailersend(apiKey)
	return &Mailer{email: ms.Email, fromEmail: fromEmail, fromName: fromName}
}

func (m *Mailer) Notify(ctx context.Context, msg Message) error {
	if msg.Recipient.Email == "" {
		log.Printf("mailer: skip kind=%s event=%s recipient=%s: no email", msg.Kind, msg.EventID, msg.RecipientUserID)
		return nil
	}

	subject, html, err := render(msg)
	if err != nil {
		return err
	}

	message := m.email.NewMessage()
	message.SetFrom(mailersend.From{Name: m.fromName, Email: m.fromEmail})
	message.SetRecipients([]mailersend.Recipient{{Name: msg.Recipient.Name, Email: msg.Recipient.Email}})
	message.SetSubject(subject)
	message.SetHTML(html)

	if _, err := m.email.Send(ctx, message); err != nil {
		return fmt.Errorf("send %s email: %w", msg.Kind, err)
	}
	log.Printf("mailer: sent kind=%s event=%s to=%s", msg.Kind, msg.EventID, msg.Recipient.Email)
	return nil
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<p>Hi {{.Recipient.Name}},</p>
{{template "content" .}}
<p><strong>{{.EventTitle}}</strong><br>
{{.StartTime.Format "2006-01-02 15:04"}} to {{.EndTime.Format "15:04"}}{{if .Address}}<br>{{.Address}}{{end}}</p>
<p>Seats taken: {{.ConfirmedCount}}{{if gt .Capacity 0}} of {{.Capacity}}{{end}}</p>`

func mustTemplate(content string) *template.Template {
	t := template.Must(template.New("layout").Parse(layout))
	return template.Must(t.New("content").Parse(content))
}

var templates = map[Kind]emailTemplate{
	KindSeatConfirmed: {
		subject: "Reservation confirmed: %s",
		body:    mustTemplate(`<p>Your reservation for {{.SeatCount}} seat(s) is confirmed. Hosted by {{.HostName}}.</p>`),
	},
	KindEventFull: {
		subject: "Your meal %s is full",
		body:    mustTemplate(`<p>Every seat of your meal has been reserved.</p>`),
	},
	KindSelfCancelled: {
		subject: "Reservation cancelled: %s",
		body:    mustTemplate(`<p>You have cancelled your reservation.</p>`),
	},
	KindHostCancellation: {
		subject: "A guest cancelled for %s",
		body:    mustTemplate(`<p>{{.ParticipantName}} cancelled their reservation for your meal.</p>`),
	},
	KindParticipantCancellation: {
		subject: "A guest cancelled for %s",
		body:    mustTemplate(`<p>{{.ParticipantName}} is no longer joining a meal you reserved.</p>`),
	},
	KindEventCancelled: {
		subject: "Meal cancelled: %s",
		body:    mustTemplate(`<p>The host has cancelled this meal and your reservation has been released.</p>`),
	},
}

func render(msg Message) (string, string, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("no email template for kind %q", msg.Kind)
	}
	var buf bytes.Buffer
	if err := tpl.body.ExecuteTemplate(&buf, "layout", msg); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", msg.Kind, err)
	}
	return fmt.Sprintf(tpl.subject, msg.EventTitle), buf.String(), nil
}
