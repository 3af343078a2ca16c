package templates

import (
	"fmt"
	"time"
)

// IssueResolvedEmail returns the subject, plain text and HTML telling a
// reporter their issue was fixed.
func IssueResolvedEmail(reporterName, issueTitle, workSummary, clientURL string) (subject, plain, htmlBody string) {
	subject = "Your reported issue has been resolved"
	plain = fmt.Sprintf("Hi %s,\n\nGood news: \"%s\" has been resolved by the municipal team.\n\nWork done: %s\n\nThank you for helping improve your neighbourhood.",
		reporterName, issueTitle, workSummary)
	return subject, plain, RenderGenericEmail(subject, plain, clientURL)
}

// InspectionReminderEmail returns the subject, plain text and HTML reminding
// an inspector of an upcoming inspection.
func InspectionReminderEmail(inspectorName, inspectionID, title string, scheduled time.Time, clientURL string) (subject, plain, htmlBody string) {
	subject = fmt.Sprintf("Inspection %s is scheduled soon", inspectionID)
	plain = fmt.Sprintf("Hi %s,\n\nInspection %s (%s) is scheduled for %s UTC.\n\nPlease review the checklist before you go on site.",
		inspectorName, inspectionID, title, scheduled.UTC().Format("Mon 02 Jan 2006 15:04"))
	return subject, plain, RenderGenericEmail(subject, plain, clientURL)
}
