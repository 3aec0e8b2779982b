package collab

import (
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rhythmmp/server/internal/wire"
)

const (
	topicRoomJoined    = "rhythmmp/room/joined"
	topicRoomLeft      = "rhythmmp/room/left"
	topicRoomCreated   = "rhythmmp/room/created"
	topicRoomDestroyed = "rhythmmp/room/destroyed"
)

// MQTTEventSink publishes room membership changes to an MQTT broker,
// generalized from the energizer project's MQTTHandler (connect options,
// QoS-1 fire-and-forget publish, JSON envelope with a timestamp).
type MQTTEventSink struct {
	client mqtt.Client
}

// NewMQTTEventSink connects to brokerURL (e.g. "tcp://localhost:1883") and
// returns a sink publishing to it. The connection attempt is synchronous;
// callers in a constrained environment should fall back to LogEventSink on
// error.
func NewMQTTEventSink(brokerURL, clientID string) (*MQTTEventSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTEventSink{client: client}, nil
}

var _ EventSink = (*MQTTEventSink)(nil)

func (s *MQTTEventSink) publish(topic string, payload any) {
	if !s.client.IsConnected() {
		return
	}
	envelope := map[string]any{"payload": payload, "timestamp": time.Now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	token := s.client.Publish(topic, 1, false, data)
	go token.Wait()
}

func (s *MQTTEventSink) UserJoinedRoom(room wire.RoomID, user wire.UserInfo, monitor bool) {
	s.publish(topicRoomJoined, map[string]any{"room": room, "user": user.ID, "name": user.Name, "monitor": monitor})
}

func (s *MQTTEventSink) UserLeftRoom(room wire.RoomID, user wire.UserInfo) {
	s.publish(topicRoomLeft, map[string]any{"room": room, "user": user.ID, "name": user.Name})
}

func (s *MQTTEventSink) RoomCreated(room wire.RoomID, host wire.UserInfo) {
	s.publish(topicRoomCreated, map[string]any{"room": room, "host": host.ID})
}

func (s *MQTTEventSink) RoomDestroyed(room wire.RoomID) {
	s.publish(topicRoomDestroyed, map[string]any{"room": room})
}

// LogEventSink emits the same notifications as structured log lines, for
// tests and broker-less deployments.
type LogEventSink struct {
	logger *slog.Logger
}

func NewLogEventSink(logger *slog.Logger) *LogEventSink {
	return &LogEventSink{logger: logger.With(slog.String("component", "event_sink"))}
}

var _ EventSink = (*LogEventSink)(nil)

func (s *LogEventSink) UserJoinedRoom(room wire.RoomID, user wire.UserInfo, monitor bool) {
	s.logger.Info("user joined room", slog.String("room", string(room)), slog.Int("user", int(user.ID)), slog.Bool("monitor", monitor))
}

func (s *LogEventSink) UserLeftRoom(room wire.RoomID, user wire.UserInfo) {
	s.logger.Info("user left room", slog.String("room", string(room)), slog.Int("user", int(user.ID)))
}

func (s *LogEventSink) RoomCreated(room wire.RoomID, host wire.UserInfo) {
	s.logger.Info("room created", slog.String("room", string(room)), slog.Int("host", int(host.ID)))
}

func (s *LogEventSink) RoomDestroyed(room wire.RoomID) {
	s.logger.Info("room destroyed", slog.String("room", string(room)))
}
