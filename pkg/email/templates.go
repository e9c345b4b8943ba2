package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var notificationTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #1f2933;">
    <h2 style="margin-bottom: 8px;">{{.Title}}</h2>
    <p>{{.Message}}</p>
    {{if .Link}}<p><a href="{{.Link}}">View details</a></p>{{end}}
    <hr>
    <p style="font-size: 12px; color: #7b8794;">You are receiving this because email notifications are enabled on your CivicConnect account.</p>
  </body>
</html>`))

// NotificationContent is the data rendered into notification emails.
type NotificationContent struct {
	Title   string
	Message string
	Link    string
}

// RenderNotification builds the email for a notification record.
func RenderNotification(to string, content NotificationContent) (Message, error) {
	var buf bytes.Buffer
	if err := notificationTemplate.Execute(&buf, content); err != nil {
		return Message{}, fmt.Errorf("render notification email: %w", err)
	}
	text := content.Message
	if content.Link != "" {
		text += "\n\n" + content.Link
	}
	return Message{
		To:       to,
		Subject:  content.Title,
		TextBody: text,
		HTMLBody: buf.String(),
	}, nil
}
