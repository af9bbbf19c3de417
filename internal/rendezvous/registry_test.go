package rendezvous_test

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/oakwood-labs/rtspgw/internal/rendezvous"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DataArrivesFirstThenControl(t *testing.T) {
	reg := rendezvous.NewRegistry(nil)

	dataConn := &websocket.Conn{}
	pair, err := reg.Arrive("sess-1", rendezvous.ConnData, dataConn, "")
	require.NoError(t, err)
	require.Nil(t, pair)

	controlConn := &websocket.Conn{}
	pair, err = reg.Arrive("sess-1", rendezvous.ConnControl, controlConn, "rtsp://o/s")
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.Same(t, controlConn, pair.Control)
	require.Same(t, dataConn, pair.Data)
	require.Equal(t, "rtsp://o/s", pair.RTSPURL)
}

func TestRegistry_ControlArrivesFirstThenData(t *testing.T) {
	reg := rendezvous.NewRegistry(nil)

	controlConn := &websocket.Conn{}
	pair, err := reg.Arrive("sess-2", rendezvous.ConnControl, controlConn, "rtsp://o/s")
	require.NoError(t, err)
	require.Nil(t, pair)

	dataConn := &websocket.Conn{}
	pair, err = reg.Arrive("sess-2", rendezvous.ConnData, dataConn, "")
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.Same(t, controlConn, pair.Control)
	require.Same(t, dataConn, pair.Data)
}

func TestRegistry_ControlWithoutRTSPURLRejected(t *testing.T) {
	reg := rendezvous.NewRegistry(nil)
	_, err := reg.Arrive("sess-3", rendezvous.ConnControl, &websocket.Conn{}, "")
	require.Error(t, err)
}

func TestRegistry_DuplicateDataRejected(t *testing.T) {
	reg := rendezvous.NewRegistry(nil)

	_, err := reg.Arrive("sess-4", rendezvous.ConnData, &websocket.Conn{}, "")
	require.NoError(t, err)

	_, err = reg.Arrive("sess-4", rendezvous.ConnData, &websocket.Conn{}, "")
	require.Error(t, err)
}

func TestRegistry_Forget(t *testing.T) {
	reg := rendezvous.NewRegistry(nil)

	_, err := reg.Arrive("sess-5", rendezvous.ConnData, &websocket.Conn{}, "")
	require.NoError(t, err)

	reg.Forget("sess-5")

	pair, err := reg.Arrive("sess-5", rendezvous.ConnControl, &websocket.Conn{}, "rtsp://o/s")
	require.NoError(t, err)
	require.Nil(t, pair, "data entry should have been forgotten, leaving control waiting")
}
