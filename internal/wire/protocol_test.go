package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolWriteSetsDoneFlagWhenResultSet(t *testing.T) {
	var buf bytes.Buffer
	p := NewProtocol(&buf)

	require.NoError(t, p.Write(&GetStateEntryMessage{Key: "k", Result: EntryResult{Value: []byte("v")}}))

	h, _, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.True(t, h.Flags.Has(FlagDone))
}

func TestProtocolWriteOmitsDoneFlagWhenResultUnset(t *testing.T) {
	var buf bytes.Buffer
	p := NewProtocol(&buf)

	require.NoError(t, p.Write(&GetStateEntryMessage{Key: "k"}))

	h, _, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.False(t, h.Flags.Has(FlagDone))
}

func TestProtocolWriteSetsRequiresAckForRunEntry(t *testing.T) {
	var buf bytes.Buffer
	p := NewProtocol(&buf)

	require.NoError(t, p.Write(&RunEntryMessage{Result: EntryResult{Value: []byte("v")}}))

	h, _, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.True(t, h.Flags.Has(FlagRequiresAck))
	assert.True(t, h.Flags.Has(FlagDone))
}

func TestProtocolReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	p := NewProtocol(&buf)

	sent := &CallEntryMessage{ServiceName: "Orders", HandlerName: "Place", Parameter: []byte("x")}
	require.NoError(t, p.Write(sent))

	got, err := p.Read()
	require.NoError(t, err)
	entry, ok := got.(*CallEntryMessage)
	require.True(t, ok)
	assert.Equal(t, sent.ServiceName, entry.ServiceName)
	assert.Equal(t, sent.HandlerName, entry.HandlerName)
	assert.Equal(t, sent.Parameter, entry.Parameter)
}
