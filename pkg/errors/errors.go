// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the Battery Data Logger.
//
// The types mirror the failure classes the logger distinguishes:
//
//   - SensorError: a device enumeration or snapshot read failed. The sampler
//     recovers locally by skipping the device or the tick.
//   - StorageError: the log store could not append, clear, export or scan.
//     Returned to the caller of that operation.
//   - ConfigError: a configuration value was rejected. The previous valid
//     configuration stays in effect.
//   - NetworkError: a mirror (InfluxDB, MQTT) or the control API could not be
//     reached.
//   - NotificationError: an alert could not be delivered.
//   - ValidationError: a sample or request carried an invalid value.
//
// # Example Usage
//
//	err := errors.NewSensorError("read", "BAT0", fmt.Errorf("no such device"))
//	if errors.IsSensorError(err) {
//	    log.Printf("skipping device: %v", err)
//	}
//
//	var se *errors.SensorError
//	if errors.As(err, &se) {
//	    log.Printf("failed device: %s", se.DeviceID)
//	}
package errors

import (
	"errors"
	"fmt"
	"io/fs"
)

// SensorError represents a failure reading battery data from the OS.
type SensorError struct {
	Op       string // Operation being performed (e.g., "enumerate", "read")
	DeviceID string // Device involved (empty for enumeration)
	Err      error  // Underlying error
}

func (e *SensorError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("sensor %s (device=%s): %v", e.Op, e.DeviceID, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("sensor %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sensor %s failed", e.Op)
}

func (e *SensorError) Unwrap() error {
	return e.Err
}

// NewSensorError creates a new sensor error.
func NewSensorError(op string, deviceID string, err error) *SensorError {
	return &SensorError{Op: op, DeviceID: deviceID, Err: err}
}

// IsSensorError checks if an error is a SensorError.
func IsSensorError(err error) bool {
	var se *SensorError
	return errors.As(err, &se)
}

// StorageError represents an error during log store operations.
type StorageError struct {
	Op   string // Operation being performed (e.g., "append", "clear", "export")
	Path string // File involved in the operation (if applicable)
	Err  error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s (path=%s): %v", e.Op, e.Path, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports ErrNoPermission for failures caused by file permissions.
func (e *StorageError) Is(target error) bool {
	return target == ErrNoPermission && errors.Is(e.Err, fs.ErrPermission)
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidConfig, so callers can test for any rejected value
// without unwrapping.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ValidationError represents a data validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Invalid value
	Reason  string // Why validation failed
	Details error  // Additional details (optional)
}

func (e *ValidationError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("validation error: field %q with value %v: %s (%v)", e.Field, e.Value, e.Reason, e.Details)
	}
	return fmt.Sprintf("validation error: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Details
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NetworkError represents a network-related error.
type NetworkError struct {
	Op   string // Operation being performed (e.g., "influxdb write", "mqtt publish")
	Addr string // Network address (if applicable)
	Err  error  // Underlying error
}

func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("network %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("network %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("network %s failed", e.Op)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error.
func NewNetworkError(op string, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// IsNetworkError checks if an error is a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type string // Notification type (e.g., "slack")
	Err  error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrNoBattery indicates the OS exposes no battery devices
	ErrNoBattery = errors.New("no battery found")

	// ErrDeviceNotFound indicates a device id is not known to the sensor
	ErrDeviceNotFound = errors.New("device not found")

	// ErrCircuitBreakerOpen indicates a mirror's circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidConfig matches every ConfigError
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotConnected indicates a mirror connection is down
	ErrNotConnected = errors.New("not connected")

	// ErrNoPermission matches a StorageError caused by file permissions
	ErrNoPermission = errors.New("permission denied")
)
