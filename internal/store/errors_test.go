package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreIOErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &StoreIOError{Op: "insert", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClaimContentionMessage(t *testing.T) {
	err := &ClaimContention{TaskID: 42}
	assert.Contains(t, err.Error(), "42")
}
