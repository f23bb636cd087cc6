// Package enginetest provides compliance test suites for backend Engine and
// Backend implementations.
//
// The suites live in subpackages; this package declares nothing itself. Test
// authors call the exported Run*Tests functions of subpackage clitest (e.g.,
// clitest.RunSpawnerTests, clitest.RunParserTests) with a factory function that
// returns the implementation under test. This ensures all backends satisfy the
// same behavioral contract.
//
// Example usage in a backend test file:
//
//	func TestClaudeBackend(t *testing.T) {
//	    clitest.RunSpawnerTests(t, func() cli.Spawner {
//	        return claude.New()
//	    })
//	}
package enginetest
