package mqttclient

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectedEvent(t *testing.T) {
	ev := newConnectedEvent(true, false)
	assert.ErrorIs(t, ev, ErrConnected)
	assert.True(t, ev.SessionPresent)
	assert.False(t, ev.Reconnect)
	assert.Equal(t, "connected", ev.Error())
}

func TestDisconnectError(t *testing.T) {
	local := newDisconnectError(ReasonSuccess, false)
	assert.ErrorIs(t, local, ErrDisconnected)
	assert.NotErrorIs(t, local, ErrServerDisconnect)
	assert.Equal(t, "disconnected", local.Error())

	remote := newDisconnectError(ReasonServerBusy, true)
	assert.ErrorIs(t, remote, ErrServerDisconnect)
	assert.Equal(t, "server disconnect: server busy", remote.Error())

	var de *DisconnectError
	require.True(t, errors.As(error(remote), &de))
	assert.True(t, de.Remote)
}

func TestReconnectEvent(t *testing.T) {
	ev := newReconnectEvent(2, 5, time.Second)
	assert.ErrorIs(t, ev, ErrReconnecting)
	assert.Equal(t, 2, ev.Attempt)
	assert.Equal(t, 5, ev.MaxAttempts)
	assert.Equal(t, time.Second, ev.Delay)
}

func TestPublishError(t *testing.T) {
	tests := []struct {
		name   string
		reason ReasonCode
		target error
		other  error
	}{
		{"quota exceeded", ReasonQuotaExceeded, ErrRateLimited, ErrPublishFailed},
		{"not authorized", ReasonNotAuthorized, ErrPublishFailed, ErrRateLimited},
		{"unspecified", ReasonUnspecifiedError, ErrPublishFailed, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newPublishError("a/b", 7, tt.reason)
			assert.ErrorIs(t, err, tt.target)
			assert.NotErrorIs(t, err, tt.other)
			assert.Equal(t, "a/b", err.Topic)
			assert.Equal(t, uint16(7), err.PacketID)
			assert.Contains(t, err.Error(), tt.reason.String())
		})
	}
}

func TestSubscribeError(t *testing.T) {
	err := newSubscribeError("a/#", ReasonUnspecifiedError)
	assert.ErrorIs(t, err, ErrSubscribeFailed)
	assert.Equal(t, "subscribe a/# failed: unspecified error", err.Error())
}

func TestConnectionLostError(t *testing.T) {
	err := newConnectionLostError(io.EOF)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "connection lost: EOF", err.Error())

	bare := newConnectionLostError(nil)
	assert.ErrorIs(t, bare, ErrConnectionLost)
	assert.Equal(t, "connection lost", bare.Error())
}

func TestConnectError(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		err := newConnectRefused(ReasonServerUnavailable)
		assert.ErrorIs(t, err, ErrConnectRefused)
		assert.NotErrorIs(t, err, ErrAuthFailed)
		assert.Equal(t, "connect failed: server unavailable", err.Error())
	})

	t.Run("auth", func(t *testing.T) {
		for _, rc := range []ReasonCode{ReasonBadUserNameOrPassword, ReasonNotAuthorized} {
			err := newConnectRefused(rc)
			assert.ErrorIs(t, err, ErrConnectRefused)
			assert.ErrorIs(t, err, ErrAuthFailed)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := newConnectFailure(cause)
		assert.ErrorIs(t, err, ErrConnectFailed)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrConnectRefused)
		assert.Equal(t, "connect failed: dial tcp: refused", err.Error())

		var ce *ConnectError
		require.True(t, errors.As(error(err), &ce))
		assert.Equal(t, ReasonUnspecifiedError, ce.ReasonCode)
	})
}
