// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
)

// Severity ranks an alert. Notifiers map it to their own presentation.
type Severity string

// Alert severities, lowest first.
const (
	SeverityInfo    Severity = "info"
	SeverityGood    Severity = "good"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// AlertField is a labelled value shown alongside an alert, e.g. the device
// or its charge.
type AlertField struct {
	Name  string
	Value string
}

// Alert is one operator notification.
type Alert struct {
	Severity Severity
	Title    string
	Text     string
	Fields   []AlertField
}

// Notifier delivers alerts to an operator channel.
type Notifier interface {
	// Notify delivers the alert. A disabled notifier returns nil.
	Notify(ctx context.Context, alert Alert) error
	IsEnabled() bool
}
