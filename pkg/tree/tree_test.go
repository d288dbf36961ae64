package tree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseACL(t *testing.T) {
	tests := []struct {
		in      string
		want    ACL
		wantErr bool
	}{
		{in: "740", want: ACLGroupRead},
		{in: "0700", want: ACLPrivate},
		{in: "777", want: ACLMask},
		{in: "1777", wantErr: true},
		{in: "rwx", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseACL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestACL_String(t *testing.T) {
	assert.Equal(t, "rwsr-----", ACLGroupRead.String())
	assert.Equal(t, "rwsrw----", ACLGroupWrite.String())
}

func TestACL_Has(t *testing.T) {
	assert.True(t, ACLGroupWrite.Has(ShiftGroup, PermWrite))
	assert.False(t, ACLGroupWrite.Has(ShiftGroup, PermShare))
	assert.False(t, ACLGroupWrite.Has(ShiftWorld, PermRead))
	assert.True(t, ACLPrivate.Has(ShiftOwner, PermRead|PermWrite|PermShare))
}

func TestParseKindAndMode_RoundTrip(t *testing.T) {
	for k := KindFolder; k <= KindMediaFile; k++ {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for m := ModeDefault; m <= ModeSharedReadWrite; m++ {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseKind("symlink")
	assert.True(t, IsCode(err, ErrInvalidArgument))
	_, err = ParseMode("hard")
	assert.True(t, IsCode(err, ErrInvalidArgument))
}

func TestKind_Accepts(t *testing.T) {
	assert.True(t, KindFolder.Accepts(KindFolder))
	assert.True(t, KindFolder.Accepts(KindDocument))
	assert.True(t, KindNotebook.Accepts(KindDocument))
	assert.True(t, KindNotebook.Accepts(KindMediaFile))
	assert.False(t, KindNotebook.Accepts(KindFolder), "notebooks hold only leaf records")
	assert.False(t, KindNotebook.Accepts(KindNotebook))
	assert.False(t, KindDocument.Accepts(KindDocument), "leaves have no children")
}

func TestPropagationMode_IsShare(t *testing.T) {
	assert.False(t, ModeDefault.IsShare())
	assert.False(t, ModeSuppressed.IsShare())
	assert.True(t, ModeSharedReadOnly.IsShare())
	assert.True(t, ModeSharedReadWrite.IsShare())
	assert.False(t, PropagationMode(9).Valid())
}

func TestLiveAndPrimaryEdges(t *testing.T) {
	parent, child := NewID(), NewID()
	primary := &Edge{Parent: parent, Child: child, Mode: ModeSuppressed}
	share := &Edge{Parent: NewID(), Child: child, Mode: ModeSharedReadOnly}
	gone := &Edge{Parent: NewID(), Child: child, Mode: ModeDefault, Deleted: true}

	live := LiveEdges([]*Edge{share, gone, primary})
	assert.Len(t, live, 2)
	assert.Same(t, primary, PrimaryEdge(live))
	assert.Nil(t, PrimaryEdge([]*Edge{share}))
}

func TestStoreError(t *testing.T) {
	id := NewID()
	err := fmt.Errorf("wrapped: %w", NewNotFoundError(id))

	assert.True(t, IsCode(err, ErrNotFound))
	assert.False(t, IsCode(err, ErrCycleDetected))
	assert.ErrorIs(t, err, &StoreError{Code: ErrNotFound})
	assert.Contains(t, err.Error(), id.String())

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, "NotFound", code.String())

	_, ok = CodeOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestCompositeResult(t *testing.T) {
	r := NewCompositeResult()
	a, b, c := NewID(), NewID(), NewID()

	r.Record(a, Outcome{Kind: OutcomeDeleted})
	r.Skip(b, "cycle detected")
	r.Fail(c, "NotDeletable: signed")
	r.Record(a, Outcome{Kind: OutcomeUnshared})

	assert.Equal(t, []NodeID{a, b, c}, r.IDs(), "re-recording keeps the original position")
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 1, r.Count(OutcomeUnshared))
	assert.Equal(t, 0, r.Count(OutcomeDeleted))
	assert.True(t, r.HasFailures())

	o, ok := r.Outcome(b)
	require.True(t, ok)
	assert.Equal(t, "skipped(cycle detected)", o.String())
	assert.False(t, o.Succeeded())
}

func TestCompositeResult_ConcurrentRecord(t *testing.T) {
	r := NewCompositeResult()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(NewID(), Outcome{Kind: OutcomeAdded})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Count(OutcomeAdded))
}
