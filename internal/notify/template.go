package notify

import (
	"bytes"
	"html/template"
)

// emailTemplate is the single HTML body used for every outbound email.
// Placeholders are filled from Data; absent fields collapse cleanly.
var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #222;">
    <h2>{{.Title}}</h2>
    <p>{{.Message}}</p>
    {{if .Fields}}
    <table cellpadding="6" style="border-collapse: collapse;">
      {{range .Fields}}
      <tr>
        <td style="font-weight: bold;">{{.Label}}</td>
        <td>{{.Value}}</td>
      </tr>
      {{end}}
    </table>
    {{end}}
  </body>
</html>
`))

// RenderHTML produces the email body for a notification payload.
func RenderHTML(data Data) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
