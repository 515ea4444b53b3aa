package transport

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"

	"clustercoord/internal/cluster"
)

func encodedMembershipAck(t *testing.T, ok, lost bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(membershipAck{Ok: ok, LostUpdates: lost}))
	return buf.Bytes()
}

func TestPushDeltaReportsLostUpdates(t *testing.T) {
	session := &fakeSession{reply: encodedMembershipAck(t, true, true)}
	tr := &fakeTransport{session: session}
	pusher := NewMembershipPusher(tr)

	lost, err := pusher.PushDelta("member1:7100", []cluster.ServerEntry{{ServiceLocator: "x"}}, 5, 42)
	require.NoError(t, err)
	require.True(t, lost)

	var env membershipEnvelope
	require.NoError(t, gob.NewDecoder(bytes.NewReader(session.lastPayload)).Decode(&env))
	require.Equal(t, opPushDelta, env.Op)
	require.Equal(t, uint64(5), env.Version)
	require.Equal(t, uint16(42), env.Checksum)
}

func TestPushFullSendsFullOp(t *testing.T) {
	session := &fakeSession{reply: encodedMembershipAck(t, true, false)}
	tr := &fakeTransport{session: session}
	pusher := NewMembershipPusher(tr)

	err := pusher.PushFull("member1:7100", nil, 9)
	require.NoError(t, err)

	var env membershipEnvelope
	require.NoError(t, gob.NewDecoder(bytes.NewReader(session.lastPayload)).Decode(&env))
	require.Equal(t, opPushFull, env.Op)
}

func TestPushDeltaPropagatesDialError(t *testing.T) {
	tr := &fakeTransport{err: bytesError("dial refused")}
	pusher := NewMembershipPusher(tr)
	_, err := pusher.PushDelta("member1:7100", nil, 1, 0)
	require.Error(t, err)
}

func TestMembershipPusherClosesSessionAfterSend(t *testing.T) {
	session := &fakeSession{reply: encodedMembershipAck(t, true, false)}
	tr := &fakeTransport{session: session}
	pusher := NewMembershipPusher(tr)

	_, err := pusher.PushDelta("member1:7100", nil, 1, 0)
	require.NoError(t, err)
	require.True(t, session.closed)
}
