package errprocess

import (
	"errors"
	"testing"

	"group_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	logger.SetNewNop()
	base := errors.New("invalid argument")
	err := Wrap(base, "text is empty")
	assert.ErrorIs(t, err, base)
	assert.EqualError(t, err, "invalid argument: text is empty")
}
