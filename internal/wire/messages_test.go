package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	body, err := msg.Marshal()
	require.NoError(t, err)
	got, err := Decode(Header{Type: msg.Type(), Length: uint32(len(body))}, body)
	require.NoError(t, err)
	return got
}

func TestStartMessageRoundTrip(t *testing.T) {
	want := &StartMessage{
		Id:           []byte{1, 2, 3, 4},
		DebugId:      "inv-1",
		Key:          "customer-42",
		KnownEntries: 3,
		StateMap:     []StateEntry{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}},
		PartialState: true,
	}
	got := roundTrip(t, want)
	assert.Equal(t, want, got)
}

func TestCompletionMessageRoundTripValue(t *testing.T) {
	want := &CompletionMessage{EntryIndex: 7, Result: EntryResult{Value: []byte("v")}}
	got := roundTrip(t, want)
	assert.Equal(t, want, got)
}

func TestCompletionMessageRoundTripFailure(t *testing.T) {
	want := &CompletionMessage{
		EntryIndex: 2,
		Result:     EntryResult{Failure: &Failure{Code: 500, Message: "oops"}},
	}
	got := roundTrip(t, want)
	assert.Equal(t, want, got)
}

func TestSuspensionMessageRoundTrip(t *testing.T) {
	want := &SuspensionMessage{EntryIndexes: []uint32{1, 4, 9}}
	got := roundTrip(t, want)
	assert.Equal(t, want, got)
}

func TestGetStateEntryMessageRoundTrip(t *testing.T) {
	want := &GetStateEntryMessage{Key: "counter", Result: EntryResult{Value: []byte("5")}}
	got := roundTrip(t, want).(*GetStateEntryMessage)
	assert.Equal(t, want.Key, got.Key)
	assert.True(t, want.Result.Equal(got.Result))
}

func TestGetStateEntryMessageCompleteIdempotent(t *testing.T) {
	m := &GetStateEntryMessage{Key: "k"}
	require.NoError(t, m.Complete(EntryResult{Value: []byte("v")}))
	require.NoError(t, m.Complete(EntryResult{Value: []byte("v")}))
	assert.ErrorIs(t, m.Complete(EntryResult{Value: []byte("v2")}), ErrDuplicateCompletion)
	assert.Equal(t, EntryResult{Value: []byte("v")}, m.CurrentResult())
}

func TestCallEntryMessageRoundTrip(t *testing.T) {
	want := &CallEntryMessage{
		ServiceName: "Orders",
		HandlerName: "Place",
		Key:         "cust-1",
		Parameter:   []byte(`{"n":1}`),
	}
	got := roundTrip(t, want).(*CallEntryMessage)
	assert.Equal(t, want.ServiceName, got.ServiceName)
	assert.Equal(t, want.HandlerName, got.HandlerName)
	assert.Equal(t, want.Key, got.Key)
	assert.Equal(t, want.Parameter, got.Parameter)
}

func TestCombinatorEntryMessageRoundTrip(t *testing.T) {
	want := &CombinatorEntryMessage{
		Combinator:      CombinatorAny,
		ChildIndices:    []uint32{2, 3, 5},
		ResolutionOrder: []uint32{3},
	}
	got := roundTrip(t, want)
	assert.Equal(t, want, got)
}

func TestCombinatorEntryMessageEmptyResolutionOrder(t *testing.T) {
	// The wire format must tolerate an absent resolution order at the
	// message level, independent of when the state layer chooses to write one.
	want := &CombinatorEntryMessage{Combinator: CombinatorAll, ChildIndices: []uint32{1, 2}}
	got := roundTrip(t, want).(*CombinatorEntryMessage)
	assert.Equal(t, want.Combinator, got.Combinator)
	assert.Equal(t, want.ChildIndices, got.ChildIndices)
	assert.Empty(t, got.ResolutionOrder)
}

func TestDecodeUnknownMessageType(t *testing.T) {
	_, err := Decode(Header{Type: MessageType(0x9999)}, nil)
	var unknown *ErrUnknownMessageType
	require.ErrorAs(t, err, &unknown)
}

func TestRunEntryMessageIsAckable(t *testing.T) {
	var m Message = &RunEntryMessage{}
	_, ok := m.(AckableMessage)
	assert.True(t, ok)
}

func TestGetStateEntryMessageIsNotAckable(t *testing.T) {
	var m Message = &GetStateEntryMessage{}
	_, ok := m.(AckableMessage)
	assert.False(t, ok)
}
