package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"clustercoord/internal/coordfail"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New()
	called := false
	d.Register(Ping, func(req any, respond Responder) {
		called = true
		respond(&PingResponse{Alive: true}, nil)
	})

	var gotResp any
	var gotErr error
	d.Dispatch(Ping, &PingRequest{}, func(resp any, err error) {
		gotResp = resp
		gotErr = err
	})

	require.True(t, called)
	require.NoError(t, gotErr)
	require.Equal(t, &PingResponse{Alive: true}, gotResp)
}

func TestDispatchOnUnregisteredTypeRespondsUnimplementedWithoutCallingAnyHandler(t *testing.T) {
	d := New()
	d.Register(Ping, func(req any, respond Responder) {
		t.Fatal("handler for a different RequestType must never run")
	})

	var gotErr error
	d.Dispatch(CreateTable, &CreateTableRequest{}, func(resp any, err error) {
		gotErr = err
	})

	require.Error(t, gotErr)
	require.True(t, coordfail.IsKind(gotErr, coordfail.UnimplementedRequest))
}

func TestResponderIsCalledExactlyOnce(t *testing.T) {
	d := New()
	calls := 0
	d.Register(Ping, func(req any, respond Responder) {
		respond(&PingResponse{Alive: true}, nil)
	})

	d.Dispatch(Ping, &PingRequest{}, func(resp any, err error) {
		calls++
	})

	require.Equal(t, 1, calls)
}

func TestRegisterOverwritesPreviousHandler(t *testing.T) {
	d := New()
	d.Register(Ping, func(req any, respond Responder) {
		respond(&PingResponse{Alive: false}, nil)
	})
	d.Register(Ping, func(req any, respond Responder) {
		respond(&PingResponse{Alive: true}, nil)
	})

	var got *PingResponse
	d.Dispatch(Ping, &PingRequest{}, func(resp any, err error) {
		got = resp.(*PingResponse)
	})
	require.True(t, got.Alive)
}


