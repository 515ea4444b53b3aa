package dispatch

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Envelope is the outermost wire shape the listener decodes before it
// even knows which request type it has: RequestType tags how Payload
// must be gob-decoded.
type Envelope struct {
	Type    RequestType
	Payload []byte
}

// Reply is the outermost wire shape returned to the caller.
type Reply struct {
	Payload []byte
	Error   string
	ErrCode uint32
}

// DecodeRequest gob-decodes env.Payload into the concrete request type
// registered for env.Type, returning it as the any a Handler expects.
func DecodeRequest(env Envelope) (any, error) {
	newReq, ok := zeroRequests[env.Type]
	if !ok {
		return nil, fmt.Errorf("dispatch: unknown request type %v", env.Type)
	}
	req := newReq()
	dec := gob.NewDecoder(bytes.NewReader(env.Payload))
	if err := dec.Decode(req); err != nil {
		return nil, fmt.Errorf("dispatch: decode %v: %w", env.Type, err)
	}
	return req, nil
}

// EncodeRequest is the client-side counterpart, used by test harnesses
// and any future coordinator-to-coordinator client.
func EncodeRequest(reqType RequestType, req any) (Envelope, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		return Envelope{}, fmt.Errorf("dispatch: encode %v: %w", reqType, err)
	}
	return Envelope{Type: reqType, Payload: buf.Bytes()}, nil
}

// zeroRequests can't hold req() results directly (gob.Decode needs a
// fresh pointer each call), so each entry is a constructor.
var zeroRequests = map[RequestType]func() any{
	CreateTable:      func() any { return &CreateTableRequest{} },
	DropTable:        func() any { return &DropTableRequest{} },
	OpenTable:        func() any { return &OpenTableRequest{} },
	EnlistServer:     func() any { return &EnlistServerRequest{} },
	GetBackupList:    func() any { return &GetBackupListRequest{} },
	GetServerList:    func() any { return &GetServerListRequest{} },
	GetTabletMap:     func() any { return &GetTabletMapRequest{} },
	HintServerDown:   func() any { return &HintServerDownRequest{} },
	TabletsRecovered: func() any { return &TabletsRecoveredRequest{} },
	Ping:             func() any { return &PingRequest{} },
}
