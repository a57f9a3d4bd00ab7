package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/chomp-auth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestWatermillPublisher(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx := context.Background()
	logins, err := pubSub.Subscribe(ctx, LoginTopic)
	require.NoError(t, err)
	logouts, err := pubSub.Subscribe(ctx, LogoutTopic)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)

	session := core.Session{UserID: "0xabc", Token: "secret", Method: core.Web3Method(core.ChainEVM)}
	require.NoError(t, pub.PublishLogin(ctx, session))

	msg := receive(t, logins)
	var login LoginEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &login))
	assert.Equal(t, "0xabc", login.UserID)
	assert.Equal(t, "web3:evm", login.Method)
	assert.NotContains(t, string(msg.Payload), "secret")

	require.NoError(t, pub.PublishLogout(ctx, "0xabc"))
	msg = receive(t, logouts)
	var logout LogoutEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &logout))
	assert.Equal(t, "0xabc", logout.UserID)
}

func TestWatermillPublisherClosed(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	require.NoError(t, pubSub.Close())

	err := NewWatermillPublisher(pubSub).PublishLogout(context.Background(), "u")
	assert.Error(t, err)
}
