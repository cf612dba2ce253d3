// Package mailer renders analysis text into email bodies and transmits them.
package mailer

import (
	_ "embed"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/failwatch/failwatch/pkg/models"
)

// ErrTemplateUnrenderable is returned only when the email template itself
// cannot be used. Unparseable analysis text is never an error: the raw
// text becomes the body instead.
var ErrTemplateUnrenderable = errors.New("email template unrenderable")

//go:embed template.html
var emailTemplate string

// Extraction regexes over the analysis text. Misses fall back to record
// fields or the raw analysis, never to a formatting failure.
var (
	reSummary     = regexp.MustCompile(`(?s)SUMMARY\n(.+?)(?:\n\n|\nURGENCY|$)`)
	reUrgency     = regexp.MustCompile(`(?i)URGENCY:\s*(HIGH|MEDIUM|LOW)`)
	reUrgencyMsg  = regexp.MustCompile(`(?s)URGENCY:[^\n]*\n(.+?)(?:\n\n|\nSOLUTION|$)`)
	reSolution    = regexp.MustCompile(`(?s)SOLUTION STEPS\n+(.*?)(?:\nPREVENTIVE MEASURES|$)`)
	reStepHeader  = regexp.MustCompile(`^Step \d+:`)
	reJobName     = regexp.MustCompile(`Job Name:\s*(.+)`)
	reInstance    = regexp.MustCompile(`Instance:\s*(.+)`)
	reFailureTime = regexp.MustCompile(`Failure Time:\s*(.+)`)
)

type urgencyStyle struct {
	level  string
	color  string
	border string
}

var urgencyStyles = map[string]urgencyStyle{
	"HIGH":   {level: "HIGH", color: "#ffebee", border: "#f44336"},
	"MEDIUM": {level: "MEDIUM", color: "#fff3e0", border: "#ff9800"},
	"LOW":    {level: "LOW", color: "#e8f5e9", border: "#4caf50"},
}

// Formatter renders HTML and plain-text email bodies.
type Formatter struct {
	template string
	sender   string
	now      func() time.Time
}

// NewFormatter creates a Formatter using the embedded HTML template.
func NewFormatter(sender string) *Formatter {
	return &Formatter{template: emailTemplate, sender: sender, now: time.Now}
}

// Format renders the analysis and record into (htmlBody, plainBody).
// Structured sections are extracted where present; anything the analysis
// does not provide falls back to the record fields or the raw text.
func (f *Formatter) Format(analysis string, rec models.FailureRecord) (string, string, error) {
	if strings.TrimSpace(f.template) == "" {
		return "", "", fmt.Errorf("%w: empty template", ErrTemplateUnrenderable)
	}

	urgency := extractUrgency(analysis)
	replacements := strings.NewReplacer(
		"{{job_name}}", html.EscapeString(firstMatch(reJobName, analysis, rec.JobName)),
		"{{instance_name}}", html.EscapeString(firstMatch(reInstance, analysis, rec.ServerName)),
		"{{failure_time}}", html.EscapeString(firstMatch(reFailureTime, analysis, rec.FailedAt.UTC().Format(time.RFC3339))),
		"{{error_summary}}", html.EscapeString(extractSummary(analysis)),
		"{{solution_content}}", formatSolution(analysis),
		"{{urgency_level}}", urgency.level,
		"{{urgency_color}}", urgency.color,
		"{{urgency_border}}", urgency.border,
		"{{urgency_message}}", html.EscapeString(extractUrgencyMessage(analysis)),
		"{{timestamp}}", f.now().UTC().Format("2006-01-02 15:04:05"),
		"{{sender_email}}", html.EscapeString(f.sender),
	)

	return replacements.Replace(f.template), formatPlain(rec), nil
}

// formatPlain lists the record fields, mirroring the notification's
// text/plain alternative part.
func formatPlain(rec models.FailureRecord) string {
	var sb strings.Builder
	sb.WriteString("SQL Job Failure Alert\n\n")
	sb.WriteString("Job: " + rec.JobName + "\n")
	sb.WriteString("Server: " + rec.ServerName + "\n")
	sb.WriteString("Failed At: " + rec.FailedAt.UTC().Format(time.RFC3339) + "\n")
	sb.WriteString("Error: " + rec.FailureMessage + "\n")
	return sb.String()
}

func firstMatch(re *regexp.Regexp, analysis, fallback string) string {
	if m := re.FindStringSubmatch(analysis); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
	}
	if fallback == "" {
		return "N/A"
	}
	return fallback
}

func extractSummary(analysis string) string {
	if m := reSummary.FindStringSubmatch(analysis); m != nil {
		return strings.TrimSpace(m[1])
	}
	return "An error occurred during job execution."
}

func extractUrgency(analysis string) urgencyStyle {
	if m := reUrgency.FindStringSubmatch(analysis); m != nil {
		if style, ok := urgencyStyles[strings.ToUpper(m[1])]; ok {
			return style
		}
	}
	return urgencyStyles["MEDIUM"]
}

func extractUrgencyMessage(analysis string) string {
	if m := reUrgencyMsg.FindStringSubmatch(analysis); m != nil {
		if msg := strings.TrimSpace(m[1]); msg != "" {
			return msg
		}
	}
	return "Please review and address this issue."
}

// formatSolution renders the SOLUTION STEPS section as step and SQL
// blocks. Without a recognizable section the whole analysis is rendered
// escaped as a single block.
func formatSolution(analysis string) string {
	m := reSolution.FindStringSubmatch(analysis)
	if m == nil {
		return `<div style="padding: 15px;">` + html.EscapeString(analysis) + `</div>`
	}

	var parts []string
	var step []string
	var code []string
	inCode := false

	flushStep := func() {
		if len(step) > 0 {
			parts = append(parts, `<div class="step-item">`+html.EscapeString(strings.Join(step, " "))+`</div>`)
			step = nil
		}
	}
	flushCode := func() {
		if len(code) > 0 {
			parts = append(parts, `<div class="sql-query">`+html.EscapeString(strings.Join(code, "\n"))+`</div>`)
			code = nil
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			if inCode {
				flushCode()
				inCode = false
			} else {
				flushStep()
				inCode = true
			}
		case inCode:
			code = append(code, line)
		case reStepHeader.MatchString(trimmed):
			flushStep()
			step = append(step, trimmed)
		case trimmed != "":
			step = append(step, trimmed)
		default:
			flushStep()
		}
	}
	flushStep()
	flushCode()

	if len(parts) == 0 {
		return `<div style="padding: 15px;">` + html.EscapeString(analysis) + `</div>`
	}
	return strings.Join(parts, "")
}
