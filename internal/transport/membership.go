package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"clustercoord/internal/cluster"
)

// membershipOp discriminates the two UpdateDispatcher calls sharing this
// envelope, mirroring masterEnvelope's Op field.
type membershipOp uint8

const (
	opPushDelta membershipOp = iota
	opPushFull
)

type membershipEnvelope struct {
	Op       membershipOp
	Delta    []cluster.ServerEntry
	Version  uint64
	Checksum uint16
}

type membershipAck struct {
	Ok          bool
	LostUpdates bool
	Error       string
}

// MembershipPusher implements update.Pusher by dialing a fresh session per
// push, the same one-shot-dial policy as MasterClient.
type MembershipPusher struct {
	transport Transport
}

func NewMembershipPusher(t Transport) *MembershipPusher {
	return &MembershipPusher{transport: t}
}

func (p *MembershipPusher) PushDelta(locator string, delta []cluster.ServerEntry, version uint64, checksum uint16) (bool, error) {
	ack, err := p.send(locator, membershipEnvelope{Op: opPushDelta, Delta: delta, Version: version, Checksum: checksum})
	if err != nil {
		return false, err
	}
	return ack.LostUpdates, nil
}

func (p *MembershipPusher) PushFull(locator string, full []cluster.ServerEntry, version uint64) error {
	_, err := p.send(locator, membershipEnvelope{Op: opPushFull, Delta: full, Version: version})
	return err
}

func (p *MembershipPusher) send(locator string, env membershipEnvelope) (membershipAck, error) {
	session, err := p.transport.GetSession(locator)
	if err != nil {
		return membershipAck{}, fmt.Errorf("membershippusher: %w", err)
	}
	defer session.Close()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return membershipAck{}, fmt.Errorf("membershippusher: encode: %w", err)
	}
	respBytes, err := session.SendRequest(buf.Bytes())
	if err != nil {
		return membershipAck{}, fmt.Errorf("membershippusher: send: %w", err)
	}
	var ack membershipAck
	if err := gob.NewDecoder(bytes.NewReader(respBytes)).Decode(&ack); err != nil {
		return membershipAck{}, fmt.Errorf("membershippusher: decode ack: %w", err)
	}
	if !ack.Ok {
		return membershipAck{}, fmt.Errorf("membershippusher: remote error: %s", ack.Error)
	}
	return ack, nil
}
