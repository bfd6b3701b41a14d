package control

import (
	"fmt"

	"github.com/QYUbit/moqsession/pkg/wire"
)

type MessageType uint64

const (
	TypeSubscribe               MessageType = 0x03
	TypeSubscribeOk             MessageType = 0x04
	TypeSubscribeError          MessageType = 0x05
	TypePublishNamespace        MessageType = 0x06
	TypePublishNamespaceOk      MessageType = 0x07
	TypePublishNamespaceError   MessageType = 0x08
	TypePublishNamespaceDone    MessageType = 0x09
	TypeUnsubscribe             MessageType = 0x0a
	TypePublishDone             MessageType = 0x0b
	TypePublishNamespaceCancel  MessageType = 0x0c
	TypeTrackStatusRequest      MessageType = 0x0d
	TypeTrackStatus             MessageType = 0x0e
	TypeGoAway                  MessageType = 0x10
	TypeSubscribeNamespace      MessageType = 0x11
	TypeSubscribeNamespaceOk    MessageType = 0x12
	TypeSubscribeNamespaceError MessageType = 0x13
	TypeUnsubscribeNamespace    MessageType = 0x14
	TypeMaxRequestID            MessageType = 0x15
	TypeFetch                   MessageType = 0x16
	TypeFetchCancel             MessageType = 0x17
	TypeFetchOk                 MessageType = 0x18
	TypeFetchError              MessageType = 0x19
	TypeRequestsBlocked         MessageType = 0x1a
	TypePublish                 MessageType = 0x1d
	TypePublishOk               MessageType = 0x1e
	TypePublishError            MessageType = 0x1f
	TypeClientSetup             MessageType = 0x20
	TypeServerSetup             MessageType = 0x21
)

var typeNames = map[MessageType]string{
	TypeSubscribe:               "SUBSCRIBE",
	TypeSubscribeOk:             "SUBSCRIBE_OK",
	TypeSubscribeError:          "SUBSCRIBE_ERROR",
	TypePublishNamespace:        "PUBLISH_NAMESPACE",
	TypePublishNamespaceOk:      "PUBLISH_NAMESPACE_OK",
	TypePublishNamespaceError:   "PUBLISH_NAMESPACE_ERROR",
	TypePublishNamespaceDone:    "PUBLISH_NAMESPACE_DONE",
	TypeUnsubscribe:             "UNSUBSCRIBE",
	TypePublishDone:             "PUBLISH_DONE",
	TypePublishNamespaceCancel:  "PUBLISH_NAMESPACE_CANCEL",
	TypeTrackStatusRequest:      "TRACK_STATUS_REQUEST",
	TypeTrackStatus:             "TRACK_STATUS",
	TypeGoAway:                  "GOAWAY",
	TypeSubscribeNamespace:      "SUBSCRIBE_NAMESPACE",
	TypeSubscribeNamespaceOk:    "SUBSCRIBE_NAMESPACE_OK",
	TypeSubscribeNamespaceError: "SUBSCRIBE_NAMESPACE_ERROR",
	TypeUnsubscribeNamespace:    "UNSUBSCRIBE_NAMESPACE",
	TypeMaxRequestID:            "MAX_REQUEST_ID",
	TypeFetch:                   "FETCH",
	TypeFetchCancel:             "FETCH_CANCEL",
	TypeFetchOk:                 "FETCH_OK",
	TypeFetchError:              "FETCH_ERROR",
	TypeRequestsBlocked:         "REQUESTS_BLOCKED",
	TypePublish:                 "PUBLISH",
	TypePublishOk:               "PUBLISH_OK",
	TypePublishError:            "PUBLISH_ERROR",
	TypeClientSetup:             "CLIENT_SETUP",
	TypeServerSetup:             "SERVER_SETUP",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", uint64(t))
}

// Message is implemented by every control message.
type Message interface {
	Type() MessageType
	encode(b []byte, c Codec) ([]byte, error)
	decode(r *wire.Reader, c Codec) error
}

// Known message types and their constructors. A type missing here cannot be
// skipped: its body layout is unknown, so framing trust is lost.
var messages = map[MessageType]func() Message{
	TypeClientSetup:             func() Message { return &ClientSetup{} },
	TypeServerSetup:             func() Message { return &ServerSetup{} },
	TypeSubscribe:               func() Message { return &Subscribe{} },
	TypeSubscribeOk:             func() Message { return &SubscribeOk{} },
	TypeSubscribeError:          func() Message { return &SubscribeError{} },
	TypePublishNamespace:        func() Message { return &PublishNamespace{} },
	TypePublishNamespaceOk:      func() Message { return &PublishNamespaceOk{} },
	TypePublishNamespaceError:   func() Message { return &PublishNamespaceError{} },
	TypePublishNamespaceDone:    func() Message { return &PublishNamespaceDone{} },
	TypeUnsubscribe:             func() Message { return &Unsubscribe{} },
	TypePublishDone:             func() Message { return &PublishDone{} },
	TypePublishNamespaceCancel:  func() Message { return &PublishNamespaceCancel{} },
	TypeTrackStatusRequest:      func() Message { return &TrackStatusRequest{} },
	TypeTrackStatus:             func() Message { return &TrackStatus{} },
	TypeGoAway:                  func() Message { return &GoAway{} },
	TypeSubscribeNamespace:      func() Message { return &SubscribeNamespace{} },
	TypeSubscribeNamespaceOk:    func() Message { return &SubscribeNamespaceOk{} },
	TypeSubscribeNamespaceError: func() Message { return &SubscribeNamespaceError{} },
	TypeUnsubscribeNamespace:    func() Message { return &UnsubscribeNamespace{} },
	TypeMaxRequestID:            func() Message { return &MaxRequestID{} },
	TypeRequestsBlocked:         func() Message { return &RequestsBlocked{} },
	TypeFetch:                   func() Message { return &Opaque{Kind: TypeFetch} },
	TypeFetchCancel:             func() Message { return &Opaque{Kind: TypeFetchCancel} },
	TypeFetchOk:                 func() Message { return &Opaque{Kind: TypeFetchOk} },
	TypeFetchError:              func() Message { return &Opaque{Kind: TypeFetchError} },
	TypePublish:                 func() Message { return &Opaque{Kind: TypePublish} },
	TypePublishOk:               func() Message { return &Opaque{Kind: TypePublishOk} },
	TypePublishError:            func() Message { return &Opaque{Kind: TypePublishError} },
}

// Encode appends the type tag and the framed body of m to b.
func Encode(b []byte, m Message, c Codec) ([]byte, error) {
	body, err := m.encode(nil, c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	b = wire.AppendVarint(b, uint64(m.Type()))
	return c.Framing.AppendBody(b, body)
}

// Decode reads one tagged message from r.
func Decode(r *wire.Reader, c Codec) (Message, error) {
	tag, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	newMessage, ok := messages[MessageType(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownMessageType, tag)
	}
	m := newMessage()
	if err := DecodeBody(r, m, c); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeBody decodes the framed body of a message whose tag was already read.
func DecodeBody(r *wire.Reader, m Message, c Codec) error {
	err := wire.DecodeBody(r, c.Framing, func(body *wire.Reader) error {
		return m.decode(body, c)
	})
	if err != nil {
		return fmt.Errorf("decode %s: %w", m.Type(), err)
	}
	return nil
}
