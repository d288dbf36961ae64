package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func (suite *StoreTestSuite) RunHealthcheckTests(test *testing.T) {
	test.Run("Healthcheck_Success", suite.TestHealthcheck_Success)
}

func (suite *StoreTestSuite) TestHealthcheck_Success(test *testing.T) {
	store := suite.newStore(test)

	assert.NoError(test, store.Healthcheck(context.Background()))
}
