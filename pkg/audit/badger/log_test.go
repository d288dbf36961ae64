package badger

import (
	"context"
	"testing"

	"github.com/marmos91/dittotree/pkg/audit"
	audittesting "github.com/marmos91/dittotree/pkg/audit/testing"
)

func TestBadgerLog(t *testing.T) {
	suite := &audittesting.LogTestSuite{
		NewLog: func() audit.Log {
			log, err := NewBadgerLog(context.Background(), BadgerLogConfig{InMemory: true})
			if err != nil {
				panic(err)
			}
			return log
		},
	}

	suite.Run(t)
}
