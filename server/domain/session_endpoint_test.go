package domain_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/touka-aoi/snakey/game/statechange"
	"github.com/touka-aoi/snakey/server/domain"
	"github.com/touka-aoi/snakey/server/domain/mocks"
)

func blockUntilDone(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func receive(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return domain.Message{}
	}
}

func controlOf(t *testing.T, msg domain.Message) statechange.ControlSubType {
	t.Helper()
	frame, err := statechange.DecodeFrame(msg.Data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.DataType != statechange.DataTypeControl {
		t.Fatalf("DataType = %d, want control", frame.DataType)
	}
	return statechange.ControlSubType(frame.SubType)
}

func TestSessionEndpoint_NewValidation(t *testing.T) {
	if _, err := domain.NewSessionEndpoint(nil, nil, nil, nil); err != domain.ErrInitializationFailed {
		t.Errorf("NewSessionEndpoint(nil...) = %v, want ErrInitializationFailed", err)
	}
}

func TestSessionEndpoint_RelayAndKick(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	roomManager := mocks.NewMockRoomManager(ctrl)
	ps := domain.NewSimplePubSub()

	roomID := domain.NewRoomID()
	roomCh := ps.Subscribe(domain.Topic("room:" + roomID.String()))

	hello, err := statechange.Encode(statechange.GameSubTypeHello, &statechange.Hello{Name: "alice"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	spoofed := statechange.EncodeControl(statechange.ControlSubTypeLeave)

	roomManager.EXPECT().GetRoom(gomock.Any(), gomock.Any()).Return(roomID, nil)
	gomock.InOrder(
		transport.EXPECT().Read(gomock.Any()).Return(spoofed, nil),
		transport.EXPECT().Read(gomock.Any()).Return(hello, nil),
		transport.EXPECT().Read(gomock.Any()).DoAndReturn(blockUntilDone),
	)
	written := make(chan []byte, 1)
	transport.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, data []byte) error {
		written <- data
		return nil
	})
	transport.EXPECT().Close(domain.ClosePolicyViolation, "kicked").Return(nil)

	session := domain.NewSession()
	se, err := domain.NewSessionEndpoint(session, domain.NewConnection(transport), ps, roomManager,
		domain.WithPingInterval(0))
	if err != nil {
		t.Fatalf("NewSessionEndpoint: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- se.Run() }()

	join := receive(t, roomCh)
	if join.SessionID != session.ID() || controlOf(t, join) != statechange.ControlSubTypeJoin {
		t.Fatalf("first room message = %+v, want join from %s", join, session.ID())
	}
	// クライアントが送った制御フレームはルームに届かない
	msg := receive(t, roomCh)
	frame, err := statechange.DecodeFrame(msg.Data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.GameSubType() != statechange.GameSubTypeHello {
		t.Errorf("relayed sub type = %s, want hello", frame.GameSubType())
	}

	ps.Publish(context.Background(), domain.Topic("session:"+session.ID().String()), domain.Message{Data: []byte("to-client")})
	select {
	case data := <-written:
		if string(data) != "to-client" {
			t.Errorf("written = %q, want to-client", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}

	ps.Publish(context.Background(), domain.Topic("session:"+session.ID().String()+":ctrl"), domain.Message{
		SessionID: session.ID(),
		Data:      statechange.EncodeControl(statechange.ControlSubTypeKick),
	})
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after kick")
	}

	leave := receive(t, roomCh)
	if controlOf(t, leave) != statechange.ControlSubTypeLeave {
		t.Errorf("last room message is not leave")
	}
	if !session.IsClosed() {
		t.Error("session not closed after kick")
	}
}

func TestSessionEndpoint_ReadErrorCloses(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	roomManager := mocks.NewMockRoomManager(ctrl)
	ps := domain.NewSimplePubSub()

	roomManager.EXPECT().GetRoom(gomock.Any(), gomock.Any()).Return(domain.NewRoomID(), nil)
	transport.EXPECT().Read(gomock.Any()).Return(nil, context.Canceled)
	transport.EXPECT().Close(domain.CloseNormal, "").Return(nil)

	se, err := domain.NewSessionEndpoint(domain.NewSession(), domain.NewConnection(transport), ps, roomManager,
		domain.WithPingInterval(0))
	if err != nil {
		t.Fatalf("NewSessionEndpoint: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- se.Run() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after read error")
	}
}

func TestSessionEndpoint_PingKeepsAlive(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	roomManager := mocks.NewMockRoomManager(ctrl)
	ps := domain.NewSimplePubSub()

	pinged := make(chan struct{}, 16)
	roomManager.EXPECT().GetRoom(gomock.Any(), gomock.Any()).Return(domain.NewRoomID(), nil)
	transport.EXPECT().Read(gomock.Any()).DoAndReturn(blockUntilDone)
	transport.EXPECT().Ping(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	}).AnyTimes()
	transport.EXPECT().Close(domain.CloseGoingAway, "").Return(nil)

	se, err := domain.NewSessionEndpoint(domain.NewSession(), domain.NewConnection(transport), ps, roomManager,
		domain.WithPingInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSessionEndpoint: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- se.Run() }()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping sent")
	}
	se.Close(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
