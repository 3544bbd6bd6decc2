package web

import (
	"time"

	"github.com/machshop/approvalflow/pkg/models"
)

// RecordActionRequest is the body for recording an approval decision. The
// assignment ID comes from the path.
type RecordActionRequest struct {
	Action       models.AssignmentAction `json:"action"        validate:"required,oneof=approved rejected"`
	Comments     string                  `json:"comments"`
	SignatureRef string                  `json:"signature_ref"`
}

// DelegateRequest is the body for handing an assignment to someone else.
type DelegateRequest struct {
	To     string     `json:"to"     validate:"required"`
	Reason string     `json:"reason"`
	Expiry *time.Time `json:"expiry"`
}

// CancelRequest is the body for cancelling a workflow instance.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor"`
}

// InstanceResponse decorates an instance with its completion percentage
// against the definition's stage count.
type InstanceResponse struct {
	*models.WorkflowInstance

	Progress float64 `json:"progress"`
}

// PublishDefinitionResponse returns the assigned definition ID.
type PublishDefinitionResponse struct {
	ID string `json:"id"`
}
