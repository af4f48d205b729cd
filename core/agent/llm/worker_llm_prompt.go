package llm

import (
	"fmt"
	"strings"

	"complaint_server/core/domain"
)

// maxBodyChars bounds the reply text sent to the model.
const maxBodyChars = 6000

const summaryStyle = `Write a brief business-style summary in 1-2 sentences (<= 45 words).
- State the concrete problem (wrong rev shipped, cracked housing, missing fasteners, dimension out of spec).
- Include the requested action if present (RMA requested, replacement requested, credit requested, rework needed).
- Neutral tone; no verbatim copying.`

const extractionRules = `EXTRACTION RULES:
- part_number: 5-25 chars, A-Z 0-9 - _ . / only; must include at least one digit and one letter.
- If missing or uncertain, use "` + domain.MissingPartNumber + `".
- category must be ONE of: %s`

const complaintRules = `A complaint is any email where a quality problem, defect or nonconformance is reported, tracked or acted upon.

is_complaint = true when the email involves:
- a defective, damaged or wrong part (dimensions, revision, cracked, bent, corroded, out of spec)
- formal quality documents: NCMR, SCAR, DMR, RMA, NCR, CAR, 8D
- parts rejected during inspection, returns or replacements due to a problem
- scrap or rework caused by a defect, nonconforming supplier material
- missing parts, short shipments, wrong items shipped, shipping damage
- credit or debit memos tied to quality issues, field failures
- drawing or documentation errors that caused a quality problem
- project tool notifications that reference a specific defect

is_complaint = false for administrative mail (PO confirmations, quotes, scheduling), status updates with no problem,
newsletters, meeting invites, out-of-office replies, routine shipping coordination, calibration reminders
and IT notifications.

Read the full body, not just the subject. Vague subjects often hide a real defect in the body.`

const outputFormat = `Return STRICT JSON with these keys ONLY:
{"is_complaint": boolean, "category": string, "summary": string, "part_number": string}`

// systemPrompt is fixed for every request.
var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	return strings.Join([]string{
		"You are a manufacturing quality assistant that classifies emails as complaints or non-complaints.",
		"Complaints come from external customers and from internal staff reporting quality issues.",
		summaryStyle,
		fmt.Sprintf(extractionRules, strings.Join(names, ", ")),
		complaintRules,
		outputFormat,
	}, "\n\n")
}

// userPrompt renders one message for classification.
func userPrompt(subject, sender, body string) string {
	return fmt.Sprintf("SUBJECT (cleaned): %s\nFROM: %s\nBODY TEXT:\n%s", subject, sender, truncateBody(body, maxBodyChars))
}

func truncateBody(body string, maxLen int) string {
	r := []rune(body)
	if len(r) <= maxLen {
		return body
	}
	return string(r[:maxLen]) + "..."
}
