// ABOUTME: Tests for classified domain errors
// ABOUTME: Covers kind/code extraction, wrapping and session recoverability

package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindAndCodeOf(t *testing.T) {
	err := New(Denied, CodeAccessDenied, "moderators only")
	assert.Equal(t, Denied, KindOf(err))
	assert.Equal(t, CodeAccessDenied, CodeOf(err))
	assert.True(t, IsCode(err, CodeAccessDenied))
	assert.False(t, IsCode(err, CodePollNotFound))

	// Unclassified errors degrade to storage failures
	plain := errors.New("disk on fire")
	assert.Equal(t, Storage, KindOf(plain))
	assert.Equal(t, CodeStorageFailure, CodeOf(plain))
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	inner := New(NotFound, CodePollNotFound, "")
	wrapped := fmt.Errorf("loading poll: %w", inner)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, IsCode(wrapped, CodePollNotFound))
}

func TestStoragef_WrapsCause(t *testing.T) {
	cause := errors.New("database locked")
	err := Storagef(cause, "saving vote")

	assert.Equal(t, Storage, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "saving vote")
}

func TestValidationf_CodeCarriesDetails(t *testing.T) {
	err := Validationf("need at least %d options", 2)

	require.Equal(t, Validation, KindOf(err))
	assert.Equal(t, "VALIDATION_ERROR:need at least 2 options", CodeOf(err))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(Validationf("bad input")))
	assert.True(t, Recoverable(New(Conflict, CodeAlreadyVoted, "")))
	assert.False(t, Recoverable(New(Denied, CodeAccessDenied, "")))
	assert.False(t, Recoverable(New(NotFound, CodeConferenceNotFound, "")))
	assert.False(t, Recoverable(errors.New("anything else")))
}
