package codex_test

import (
	"testing"

	"github.com/codex-autorunner/car/backend/cli"
	"github.com/codex-autorunner/car/backend/cli/codex"
	"github.com/codex-autorunner/car/backend/enginetest/clitest"
)

func TestCompliance(t *testing.T) {
	clitest.RunBackendTests(t, func() cli.Backend {
		return codex.New()
	})
}
