package analyzer

import (
	_ "embed"
	"strings"
	"time"

	"github.com/failwatch/failwatch/pkg/models"
)

//go:embed prompt.txt
var promptTemplate string

// BuildPrompt fills the analysis prompt template with the failure fields.
// Empty fields render as N/A so the model never sees a dangling label.
func BuildPrompt(rec models.FailureRecord) string {
	r := strings.NewReplacer(
		"{{job_name}}", orNA(rec.JobName),
		"{{server_name}}", orNA(rec.ServerName),
		"{{failed_at}}", orNA(formatFailedAt(rec.FailedAt)),
		"{{failure_message}}", orNA(rec.FailureMessage),
	)
	return r.Replace(promptTemplate)
}

func formatFailedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
