/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package apperr defines the error kinds shared by the store, the playback
// orchestrator and the API layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced task, playlist or audio file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyPlaylist is returned when a playlist has no entries to play.
	ErrEmptyPlaylist = errors.New("playlist is empty")

	// ErrDeviceUnavailable is returned when the audio output cannot be opened or driven.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrInvalidSchedule is returned for malformed task definitions.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrStore is returned when persistence fails.
	ErrStore = errors.New("store error")

	// ErrSuperseded is returned by a playback run that was replaced by a newer session.
	ErrSuperseded = errors.New("playback superseded")
)

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError names the offending task field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSchedule }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DeviceError wraps a failure from the audio backend.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() []error { return []error{ErrDeviceUnavailable, e.Err} }

// Device wraps err as a DeviceError. A nil err yields nil.
func Device(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Op: op, Err: err}
}

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// Store wraps err as a StoreError unless it already carries a domain kind.
// A nil err yields nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmptyPlaylist) || errors.Is(err, ErrInvalidSchedule) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Code returns the snake_case API error code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEmptyPlaylist):
		return "empty_playlist"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrInvalidSchedule):
		return "invalid_schedule"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrStore):
		return "store_error"
	default:
		return "internal_error"
	}
}
