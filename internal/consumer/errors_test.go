// Shelfstream - Activity Feeds and Review Deduplication for Book Communities
// Copyright 2026 Shelfstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfstream/shelfstream

package consumer

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	retryable := NewRetryableError("connection refused", errors.New("dial tcp"))
	permanent := NewPermanentError("malformed payload", errors.New("unexpected end of JSON"))

	if !IsRetryableError(retryable) {
		t.Error("retryable error not recognized")
	}
	if IsPermanentError(retryable) {
		t.Error("retryable error classified as permanent")
	}
	if !IsPermanentError(permanent) {
		t.Error("permanent error not recognized")
	}
	if IsRetryableError(permanent) {
		t.Error("permanent error classified as retryable")
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	inner := NewPermanentError("invalid event", nil)
	wrapped := fmt.Errorf("handler: %w", inner)

	if !IsPermanentError(wrapped) {
		t.Error("wrapped permanent error not recognized")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewRetryableError("storage write", cause)

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if err.Error() != "storage write: root cause" {
		t.Errorf("Error() = %q", err.Error())
	}

	bare := NewPermanentError("no cause", nil)
	if bare.Error() != "no cause" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestCategorizeErrorMessage(t *testing.T) {
	tests := []struct {
		message string
		want    ErrorCategory
	}{
		{"connection refused by peer", ErrorCategoryConnection},
		{"context deadline exceeded", ErrorCategoryTimeout},
		{"malformed activity event", ErrorCategoryValidation},
		{"badger txn aborted", ErrorCategoryStorage},
		{"queue capacity exceeded", ErrorCategoryCapacity},
		{"something odd", ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		if got := categorizeErrorMessage(tt.message); got != tt.want {
			t.Errorf("categorize(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestPermanentErrorDefaultCategory(t *testing.T) {
	err := NewPermanentError("something odd", nil)
	if err.Category != ErrorCategoryValidation {
		t.Errorf("category = %v, want validation default", err.Category)
	}
}

func TestCategoryOf(t *testing.T) {
	perm := NewPermanentError("malformed payload", nil)
	if got := CategoryOf(perm); got != ErrorCategoryValidation {
		t.Errorf("CategoryOf(permanent) = %v, want validation", got)
	}

	retry := NewRetryableError("badger txn conflict", nil)
	if got := CategoryOf(retry); got != ErrorCategoryStorage {
		t.Errorf("CategoryOf(retryable) = %v, want storage", got)
	}

	// Classification survives wrapping, matching the poison filter path.
	wrapped := fmt.Errorf("handler: %w", perm)
	if got := CategoryOf(wrapped); got != ErrorCategoryValidation {
		t.Errorf("CategoryOf(wrapped) = %v, want validation", got)
	}

	if got := CategoryOf(errors.New("plain")); got != ErrorCategoryUnknown {
		t.Errorf("CategoryOf(plain) = %v, want unknown", got)
	}
}

func TestCategoryString(t *testing.T) {
	if got := ErrorCategoryStorage.String(); got != "storage" {
		t.Errorf("String() = %q", got)
	}
	if got := ErrorCategory(99).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}
