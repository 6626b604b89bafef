package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skytfs/streammesh/internal/message"
)

func TestWriterStateRoundTripNoAttachments(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 1, 42, TagEvent)
	meta := &message.Meta{Tx: "a", Rx: "b", Key: "Greeting", Kind: message.KindEvent}

	require.NoError(t, w.WriteWhole(meta, []byte("hello world")))

	state := NewState("test")
	var results []*ReadResult
	for {
		r, err := state.Read(&buf)
		require.NoError(t, err)
		results = append(results, r)
		if r.Type == EventMessageFinished {
			break
		}
	}

	require.Len(t, results, 3)
	require.Equal(t, EventMsgMeta, results[0].Type)
	require.Equal(t, "Greeting", results[0].Meta.Key)
	require.Equal(t, EventPayloadFinished, results[1].Type)
	require.Equal(t, []byte("hello world"), results[1].Buf)
	require.Equal(t, EventMessageFinished, results[2].Type)
	require.Equal(t, FinishPayload, results[2].Finish)
}

func TestWriterStateRoundTripWithAttachments(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 2, 7, TagRpcRequest)
	meta := &message.Meta{
		Tx: "a", Rx: "b", Key: "Upload", Kind: message.KindRpcRequest,
		Attachments: []message.AttachmentMeta{{Name: "one", Size: 3}, {Name: "two", Size: 2}},
	}
	require.NoError(t, w.WriteMeta(meta))
	require.NoError(t, w.WritePayload(nil))
	require.NoError(t, w.WriteAttachment(0, []byte("abc")))
	require.NoError(t, w.WriteAttachment(1, []byte("xy")))
	// No Finish() call: the last AttachmentFinished is the terminator.

	state := NewState("test")
	var results []*ReadResult
	for {
		r, err := state.Read(&buf)
		require.NoError(t, err)
		results = append(results, r)
		if r.Type == EventMessageFinished {
			break
		}
	}

	// MsgMeta, PayloadFinished(empty), AttachmentFinished(0), AttachmentFinished(1), MessageFinished
	require.Len(t, results, 5)
	require.Equal(t, EventMsgMeta, results[0].Type)
	require.Equal(t, EventPayloadFinished, results[1].Type)
	require.Equal(t, EventAttachmentFinished, results[2].Type)
	require.Equal(t, uint8(0), results[2].AttachIdx)
	require.Equal(t, []byte("abc"), results[2].Buf)
	require.Equal(t, EventAttachmentFinished, results[3].Type)
	require.Equal(t, uint8(1), results[3].AttachIdx)
	require.Equal(t, []byte("xy"), results[3].Buf)
	require.Equal(t, EventMessageFinished, results[4].Type)
	require.Equal(t, FinishAttachment, results[4].Finish)
}

func TestZeroPayloadAttachmentOnlyMessageTerminatesCleanly(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 3, 1, TagRpcResponseOk)
	meta := &message.Meta{
		Tx: "a", Rx: "b", Key: "Download", Kind: message.KindRpcResponseOk,
		Attachments: []message.AttachmentMeta{{Name: "file.bin", Size: 4}},
	}
	require.NoError(t, w.WriteMeta(meta))
	require.NoError(t, w.WritePayload(nil))
	require.NoError(t, w.WriteAttachment(0, []byte("data")))

	state := NewState("test")
	var results []*ReadResult
	for {
		r, err := state.Read(&buf)
		require.NoError(t, err)
		results = append(results, r)
		if r.Type == EventMessageFinished {
			break
		}
	}

	require.Len(t, results, 4)
	require.Equal(t, EventMsgMeta, results[0].Type)
	require.Equal(t, EventPayloadFinished, results[1].Type)
	require.Empty(t, results[1].Buf)
	require.Equal(t, EventAttachmentFinished, results[2].Type)
	require.Equal(t, EventMessageFinished, results[3].Type)
}

func TestApplyAttachmentFinishedEmitsTwoEventsOnLastAttachment(t *testing.T) {
	state := NewState("test")
	meta := &message.Meta{Key: "K", Attachments: []message.AttachmentMeta{{Name: "only", Size: 2}}}
	body, err := meta.Encode()
	require.NoError(t, err)

	metaFrame := &Frame{StreamID: 1, Kind: KindMsgMeta}
	lenPrefix := make([]byte, 4)
	lenPrefix[3] = byte(len(body))
	copy(metaFrame.Data[:4], lenPrefix)
	copy(metaFrame.Data[4:], body)
	metaFrame.N = uint16(4 + len(body))
	_, err = state.Apply(metaFrame)
	require.NoError(t, err)

	finished := &Frame{StreamID: 1, Kind: KindAttachmentFinished, AttachIdx: 0, N: 2}
	copy(finished.Data[:2], "hi")
	results, err := state.Apply(finished)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, EventAttachmentFinished, results[0].Type)
	require.Equal(t, EventMessageFinished, results[1].Type)
}

func TestFrameBeforeMetaIsProtocolError(t *testing.T) {
	state := NewState("test")
	f := &Frame{StreamID: 99, Kind: KindPayloadData, N: 1}
	_, err := state.Apply(f)
	require.ErrorIs(t, err, ErrFrameBeforeMeta)
}

func TestPayloadOverrunIsRejected(t *testing.T) {
	state := NewState("test")
	meta := &message.Meta{Key: "K", PayloadSize: 2}
	body, err := meta.Encode()
	require.NoError(t, err)
	metaFrame := &Frame{StreamID: 5, Kind: KindMsgMeta}
	lenPrefix := make([]byte, 4)
	lenPrefix[3] = byte(len(body))
	copy(metaFrame.Data[:4], lenPrefix)
	copy(metaFrame.Data[4:], body)
	metaFrame.N = uint16(4 + len(body))
	_, err = state.Apply(metaFrame)
	require.NoError(t, err)

	overrun := &Frame{StreamID: 5, Kind: KindPayloadData, N: 10}
	_, err = state.Apply(overrun)
	require.ErrorIs(t, err, ErrPayloadOverrun)
}
