package app

import (
	"os"
	"sync"
)

const testModeEnv = "LEDGER_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether binaries should skip connecting to Postgres,
// Redis and the network.
func InTestMode() bool {
	return testMode()
}
