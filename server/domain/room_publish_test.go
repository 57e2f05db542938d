package domain_test

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/touka-aoi/snakey/game/statechange"
	"github.com/touka-aoi/snakey/server/domain"
	"github.com/touka-aoi/snakey/server/domain/mocks"
)

type nopApp struct{}

func (nopApp) Bind(domain.Outbox)                                            {}
func (nopApp) HandleMessage(context.Context, domain.SessionID, []byte) error { return nil }
func (nopApp) Tick(context.Context)                                          {}

func TestRoom_PublishTopics(t *testing.T) {
	ctrl := gomock.NewController(t)
	pubsub := mocks.NewMockPubSub(ctrl)
	room := domain.NewRoom(domain.NewRoomID(), pubsub, nopApp{})
	ctx := context.Background()

	alice, bob := domain.NewSessionID(), domain.NewSessionID()
	room.HandleMessage(ctx, domain.Message{SessionID: alice, Data: statechange.EncodeControl(statechange.ControlSubTypeJoin)})
	room.HandleMessage(ctx, domain.Message{SessionID: bob, Data: statechange.EncodeControl(statechange.ControlSubTypeJoin)})

	payload := []byte{1, 2, 3}
	pubsub.EXPECT().Publish(ctx, domain.Topic("session:"+alice.String()), domain.Message{Data: payload})
	room.SendTo(ctx, alice, payload)

	pubsub.EXPECT().Publish(ctx, domain.Topic("session:"+alice.String()), domain.Message{Data: payload})
	pubsub.EXPECT().Publish(ctx, domain.Topic("session:"+bob.String()), domain.Message{Data: payload})
	room.Broadcast(ctx, payload)

	pubsub.EXPECT().Publish(ctx, domain.Topic("session:"+bob.String()+":ctrl"), gomock.Any()).
		Do(func(_ context.Context, _ domain.Topic, msg domain.Message) {
			if msg.SessionID != bob {
				t.Errorf("kick SessionID = %s, want %s", msg.SessionID, bob)
			}
			if !bytes.Equal(msg.Data, statechange.EncodeControl(statechange.ControlSubTypeKick)) {
				t.Errorf("kick Data = %v, want kick control frame", msg.Data)
			}
		})
	room.Kick(ctx, bob)
}
