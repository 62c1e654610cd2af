package gameerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(BackupNotFound, "backup %d", 7)
	assert.Equal(t, "[BACKUP_NOT_FOUND] backup 7", err.Error())

	wrapped := Wrap(StoreUnavailable, "open", errors.New("disk gone"))
	assert.Equal(t, "[STORE_UNAVAILABLE] open: disk gone", wrapped.Error())
}

func TestIsWalksTheChain(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("plant: %w", Wrap(DuplicateLiveRow, "crop on farmland 3", cause))

	assert.True(t, Is(err, DuplicateLiveRow))
	assert.False(t, Is(err, BackupNotFound))
	assert.Equal(t, DuplicateLiveRow, CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
