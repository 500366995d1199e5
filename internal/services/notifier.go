package services

import (
	"log"

	"github.com/google/uuid"
)

// TemplateKind names the notification templates the core emits. Rendering and
// delivery belong to the external notification collaborator.
type TemplateKind string

const (
	TemplateDueSoon       TemplateKind = "DUE_SOON"
	TemplateOverdueFine   TemplateKind = "OVERDUE_FINE"
	TemplateCopyAllocated TemplateKind = "COPY_ALLOCATED"
)

// Notifier is the external best-effort delivery capability. Failures are
// logged by callers and never fail the operation that triggered the send.
type Notifier interface {
	Send(recipientID uuid.UUID, template TemplateKind, payload map[string]interface{}) error
}

type logNotifier struct{}

// NewLogNotifier returns a Notifier that only logs; the real transport is
// wired in deployment.
func NewLogNotifier() Notifier {
	return logNotifier{}
}

func (logNotifier) Send(recipientID uuid.UUID, template TemplateKind, payload map[string]interface{}) error {
	log.Printf("[INFO] notify: recipient=%s template=%s payload=%v", recipientID, template, payload)
	return nil
}
