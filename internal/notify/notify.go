// Package notify provides the default messaging-transport collaborator.
// Delivery is best-effort: failures are logged and never block a state
// transition.
package notify

import (
	"context"

	"github.com/koyif/cashdesk/pkg/logger"
)

// LogNotifier writes every notification to the log. It stands in for the chat
// transport in deployments that do not wire one.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, recipient int64, message string) {
	logger.Log.Info("notification",
		logger.Int64("recipient", recipient),
		logger.String("message", message),
	)
}

func (LogNotifier) DeliverArtifact(_ context.Context, recipient int64, artifactRef, caption string) {
	logger.Log.Info("artifact delivery",
		logger.Int64("recipient", recipient),
		logger.String("artifact_ref", artifactRef),
		logger.String("caption", caption),
	)
}
