package errprocess

import (
	"fmt"

	"group_chat_service/pkg/logger"
)

// Wrap log and wrap a sentinel with detail, errors.Is keeps matching the sentinel
func Wrap(sentinel error, detail string) error {
	err := fmt.Errorf("%w: %s", sentinel, detail)
	logger.Log.Debug(err.Error())
	return err
}
