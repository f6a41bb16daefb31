package errors

import (
	"errors"
	"fmt"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Platform errors

// ErrTransport is a network or HTTP-level failure talking to a platform API.
type ErrTransport struct {
	Platform   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ErrTransport) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

// ErrNotFound means the platform answered but the resource does not exist.
type ErrNotFound struct {
	Platform string
	Resource string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s: %s not found", e.Platform, e.Resource)
}

// ErrAuth is a platform-reported authorization failure.
type ErrAuth struct {
	Platform string
	Code     string
	Message  string
}

func (e *ErrAuth) Error() string {
	if e.Platform == "tiktok" {
		return fmt.Sprintf("TikTok auth failed: %s", e.Message)
	}
	return fmt.Sprintf("%s auth failed: %s", e.Platform, e.Message)
}

// OAuth errors

// ErrValidation is a rejected OAuth callback. It never reaches the token exchange.
type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return e.Reason
}

// ErrBackend is a failed or rejected token exchange.
type ErrBackend struct {
	Message string
	Err     error
}

func (e *ErrBackend) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: %s", e.Message)
}

func (e *ErrBackend) Unwrap() error {
	return e.Err
}

// ErrMissingConfig means a required setting is empty.
type ErrMissingConfig struct {
	Key string
}

func (e *ErrMissingConfig) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Key)
}

func IsTransport(err error) bool {
	var target *ErrTransport
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return errors.As(err, &target)
}

func IsAuth(err error) bool {
	var target *ErrAuth
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ErrValidation
	return errors.As(err, &target)
}

func IsBackend(err error) bool {
	var target *ErrBackend
	return errors.As(err, &target)
}

func IsMissingConfig(err error) bool {
	var target *ErrMissingConfig
	return errors.As(err, &target)
}
