package control

import (
	"bytes"
	"io"
	"testing"

	"github.com/QYUbit/moqsession/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestSubscribeRoundTrip(t *testing.T) {
	params := &wire.Parameters{}
	params.SetUint(2, 5000)

	sent := &Subscribe{
		RequestID:   4,
		Namespace:   "live/earth",
		Track:       "video",
		Priority:    128,
		GroupOrder:  GroupOrderAscending,
		Forward:     true,
		FilterType:  FilterAbsoluteRange,
		StartGroup:  10,
		StartObject: 0,
		EndGroup:    20,
		Parameters:  params,
	}
	got := roundTrip(t, sent, VariantIETF.Codec())
	require.Equal(t, sent, got)
}

func TestSubscribeInvalidFilter(t *testing.T) {
	_, err := Encode(nil, &Subscribe{FilterType: 9}, VariantIETF.Codec())
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestSubscribeOkLargestLocation(t *testing.T) {
	sent := &SubscribeOk{
		RequestID:     4,
		TrackAlias:    4,
		GroupOrder:    GroupOrderAscending,
		ContentExists: true,
		LargestGroup:  77,
		LargestObject: 3,
		Parameters:    &wire.Parameters{},
	}
	require.Equal(t, sent, roundTrip(t, sent, VariantLite.Codec()))

	empty := &SubscribeOk{RequestID: 6, Parameters: &wire.Parameters{}}
	require.Equal(t, empty, roundTrip(t, empty, VariantIETF.Codec()))
}

func TestPublishDoneSuccess(t *testing.T) {
	sent := &PublishDone{RequestID: 2, StatusCode: StatusTrackEnded, StreamCount: 9, Reason: "bye"}
	got := roundTrip(t, sent, VariantIETF.Codec()).(*PublishDone)
	require.Equal(t, sent, got)
	require.True(t, got.Success())

	require.False(t, (&PublishDone{StatusCode: StatusExpired}).Success())
}

// TestOpaqueKeepsBody makes sure unsupported messages are consumed whole.
func TestOpaqueKeepsBody(t *testing.T) {
	sent := &Opaque{Kind: TypeFetch, RequestID: 8, Body: []byte{1, 2, 3}}
	got := roundTrip(t, sent, VariantIETF.Codec())
	require.Equal(t, sent, got)
	require.Equal(t, TypeFetch, got.Type())
}

func TestDecodeUnknownMessageType(t *testing.T) {
	b := wire.AppendVarint(nil, 0x3f)
	b = append(b, 0x00, 0x00)

	_, err := Decode(wire.NewReader(bytes.NewReader(b)), VariantIETF.Codec())
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

// TestDecodeTruncatedMessage declares more body than the stream carries.
func TestDecodeTruncatedMessage(t *testing.T) {
	b, err := Encode(nil, &GoAway{NewSessionURI: "https://relay.example/next"}, VariantIETF.Codec())
	require.NoError(t, err)

	_, err = Decode(wire.NewReader(bytes.NewReader(b[:len(b)-4])), VariantIETF.Codec())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestIETFFramingUsesUint16(t *testing.T) {
	b, err := Encode(nil, &Unsubscribe{RequestID: 4}, VariantIETF.Codec())
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x00, 0x01, 0x04}, b)

	b, err = Encode(nil, &Unsubscribe{RequestID: 4}, VariantLite.Codec())
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x01, 0x04}, b)
}

func TestMessageTypeString(t *testing.T) {
	require.Equal(t, "SUBSCRIBE_OK", TypeSubscribeOk.String())
	require.Equal(t, "0x3f", MessageType(0x3f).String())
}
