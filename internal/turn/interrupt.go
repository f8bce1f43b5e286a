package turn

import "context"

// InterruptPayload exists only between an interrupt frame and the resume
// submission for the same turn.
type InterruptPayload struct {
	Kind    string
	Content string
}

const (
	// InterruptReviewRequired is the only interrupt kind the backend emits
	// today: execution is paused until a human reviews pending work.
	InterruptReviewRequired = "review_required"

	// ResumeApprove is the fixed resume token for the approval path.
	ResumeApprove = "approved"
)

// Approve resumes the suspended turn on the approval path.
func (c *Controller) Approve(ctx context.Context) error {
	return c.ResumeTurn(ctx, ResumeApprove)
}

// RequestChanges resumes the suspended turn with free-text instructions
// instead of approval.
func (c *Controller) RequestChanges(ctx context.Context, instructions string) error {
	return c.ResumeTurn(ctx, instructions)
}
