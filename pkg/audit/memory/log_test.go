package memory

import (
	"testing"

	"github.com/marmos91/dittotree/pkg/audit"
	audittesting "github.com/marmos91/dittotree/pkg/audit/testing"
)

func TestMemoryLog(t *testing.T) {
	suite := &audittesting.LogTestSuite{
		NewLog: func() audit.Log {
			return NewMemoryLog()
		},
	}

	suite.Run(t)
}
