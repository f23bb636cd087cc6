package opencode_test

import (
	"testing"

	"github.com/codex-autorunner/car/backend/cli"
	"github.com/codex-autorunner/car/backend/cli/opencode"
	"github.com/codex-autorunner/car/backend/enginetest/clitest"
)

func TestCompliance(t *testing.T) {
	clitest.RunBackendTests(t, func() cli.Backend {
		return opencode.New()
	})
}
