package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"clustercoord/internal/cluster"
	"clustercoord/internal/tablet"
	"clustercoord/internal/will"
)

// masterOp discriminates the two calls a MasterClient can make over the
// same Session, since Session only carries opaque bytes.
type masterOp uint8

const (
	opSetTablets masterOp = iota
	opStartRecovery
)

type masterEnvelope struct {
	Op             masterOp
	Tablets        []tablet.Tablet
	Will           *will.Will
	BackupList     []cluster.ServerEntry
}

type masterAck struct {
	Ok    bool
	Error string
}

// MasterClient is the collaborator the coordinator uses to push tablet
// ownership changes and kick off recovery on a specific master.
type MasterClient struct {
	session Session
}

func NewMasterClient(t Transport, locator string) (*MasterClient, error) {
	session, err := t.GetSession(locator)
	if err != nil {
		return nil, err
	}
	return &MasterClient{session: session}, nil
}

func (c *MasterClient) Close() error {
	return c.session.Close()
}

func (c *MasterClient) SetTablets(tablets []tablet.Tablet) error {
	return c.call(masterEnvelope{Op: opSetTablets, Tablets: tablets})
}

func (c *MasterClient) StartRecovery(w *will.Will, backupList []cluster.ServerEntry) error {
	return c.call(masterEnvelope{Op: opStartRecovery, Will: w, BackupList: backupList})
}

func (c *MasterClient) call(env masterEnvelope) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("masterclient: encode: %w", err)
	}
	respBytes, err := c.session.SendRequest(buf.Bytes())
	if err != nil {
		return fmt.Errorf("masterclient: send: %w", err)
	}
	var ack masterAck
	if err := gob.NewDecoder(bytes.NewReader(respBytes)).Decode(&ack); err != nil {
		return fmt.Errorf("masterclient: decode ack: %w", err)
	}
	if !ack.Ok {
		return fmt.Errorf("masterclient: remote error: %s", ack.Error)
	}
	return nil
}


