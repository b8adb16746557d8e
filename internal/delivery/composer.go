package delivery

import (
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"github.com/talentdesk/recruiter-notify/internal/domain"
)

// Composer renders the digest and job-update emails. Rendering is template
// driven so the host application can restyle without touching pipeline code.
type Composer struct {
	html *template.Template
	text *texttemplate.Template
}

type digestData struct {
	RecipientName string
	JobCount      int
	Jobs          []domain.JobSummary
}

const digestHTML = `<html><body>
<p>Hi {{.RecipientName}},</p>
<p>{{.JobCount}} new job{{if ne .JobCount 1}}s{{end}} went live on TalentDesk today:</p>
<ul>
{{- range .Jobs}}
  <li><strong>{{.Title}}</strong> — {{.Location}}{{if .Salary}} · {{.Salary}}{{end}}{{if .Commission}} · commission {{.Commission}}{{end}}</li>
{{- end}}
</ul>
<p>Log in to review them and submit candidates.</p>
</body></html>`

const digestText = `Hi {{.RecipientName}},

{{.JobCount}} new job{{if ne .JobCount 1}}s{{end}} went live on TalentDesk today:

{{range .Jobs}}  * {{.Title}} — {{.Location}}{{if .Salary}} · {{.Salary}}{{end}}{{if .Commission}} · commission {{.Commission}}{{end}}
{{end}}
Log in to review them and submit candidates.
`

func NewComposer() *Composer {
	return &Composer{
		html: template.Must(template.New("digest").Parse(digestHTML)),
		text: texttemplate.Must(texttemplate.New("digest").Parse(digestText)),
	}
}

// ComposeDigest renders the daily "new jobs" digest for one recruiter.
func (c *Composer) ComposeDigest(recipientName string, jobs []domain.JobSummary) (subject, htmlBody, textBody string, err error) {
	data := digestData{RecipientName: recipientName, JobCount: len(jobs), Jobs: jobs}

	subject = fmt.Sprintf("%d new jobs posted today", len(jobs))
	if len(jobs) == 1 {
		subject = "1 new job posted today"
	}

	var hb, tb strings.Builder
	if err = c.html.Execute(&hb, data); err != nil {
		return "", "", "", fmt.Errorf("render html digest: %w", err)
	}
	if err = c.text.Execute(&tb, data); err != nil {
		return "", "", "", fmt.Errorf("render text digest: %w", err)
	}
	return subject, hb.String(), tb.String(), nil
}

// ComposeJobUpdate renders the job-content-changed alert.
func (c *Composer) ComposeJobUpdate(recipientName string, job domain.JobSummary) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("Job updated: %s", job.Title)
	htmlBody = fmt.Sprintf(
		"<html><body><p>Hi %s,</p><p>The job <strong>%s</strong> (%s) you are working on was updated. Review the changes before submitting further candidates.</p></body></html>",
		template.HTMLEscapeString(recipientName), template.HTMLEscapeString(job.Title), template.HTMLEscapeString(job.Location))
	textBody = fmt.Sprintf(
		"Hi %s,\n\nThe job %q (%s) you are working on was updated. Review the changes before submitting further candidates.\n",
		recipientName, job.Title, job.Location)
	return subject, htmlBody, textBody
}
