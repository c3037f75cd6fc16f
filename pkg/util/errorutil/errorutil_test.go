package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	wrapped := fmt.Errorf("create: %w", NewPlatformError("failed to create ticket", errors.New("boom")))
	de := ToDomainError(wrapped)
	assert.Equal(t, "PLATFORM_ERROR", de.Code)
	assert.Equal(t, http.StatusBadGateway, de.HTTPStatus)
	assert.Equal(t, "failed to create ticket: boom", de.Error())

	plain := ToDomainError(errors.New("oops"))
	assert.Equal(t, "INTERNAL_ERROR", plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.HTTPStatus)
}

func TestIsCode(t *testing.T) {
	sentinel := errors.New("ticket not found")
	err := fmt.Errorf("outbound: %w", NewTicketNotFound("ABC-1", sentinel))
	assert.True(t, IsCode(err, CodeTicketNotFound))
	assert.False(t, IsCode(err, CodePlatform))
	assert.False(t, IsCode(errors.New("x"), CodeTicketNotFound))
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "ticket ABC-1 not found: ticket not found", ToDomainError(err).Error())
}
