package testing

import (
	"testing"

	"github.com/marmos91/dittotree/pkg/tree"
)

// StoreTestSuite is a conformance suite for tree.Store implementations.
// It tests the interface contract, not implementation details, so every
// backend (memory, badger) runs the same cases.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func() tree.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("Node", suite.RunNodeTests)
	test.Run("Edge", suite.RunEdgeTests)
	test.Run("Update", suite.RunUpdateTests)
	test.Run("Graph", suite.RunGraphTests)
	test.Run("Healthcheck", suite.RunHealthcheckTests)
}

// newStore creates a store that is closed when the test ends.
func (suite *StoreTestSuite) newStore(test *testing.T) tree.Store {
	store := suite.NewStore()
	test.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
