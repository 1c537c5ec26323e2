package okx

import (
	"log"
	"os"
)

func testWSLogger() *log.Logger {
	return log.New(os.Stderr, "[ws-test] ", 0)
}
