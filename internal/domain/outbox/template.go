package outbox

import (
	"fmt"

	"github.com/htpdf/htpdf/internal/domain/model"
)

// BuildEmailBody renders the outbound email body for a message. Known
// message types wrap the stored body in the canonical HTML template for
// that type; unknown types send the stored body verbatim.
func BuildEmailBody(msg *model.OutboxMessage) string {
	switch msg.MessageType {
	case model.MessageTypePdfCompleted:
		return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif;">
  <h2 style="color: #4CAF50;">PDF generation complete</h2>
  <p>%s</p>
  <p><strong>Job ID:</strong> %s</p>
  <p>Your PDF will be available for download for the next 7 days.</p>
</body>
</html>`, msg.Body, msg.JobID)
	case model.MessageTypePdfFailed:
		return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif;">
  <h2 style="color: #f44336;">PDF generation failed</h2>
  <p>%s</p>
  <p><strong>Job ID:</strong> %s</p>
  <p>Please try again, or contact support if the problem persists.</p>
</body>
</html>`, msg.Body, msg.JobID)
	default:
		return msg.Body
	}
}
