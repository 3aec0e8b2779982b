package wire

import "fmt"

// MessageType discriminates the room-event notifications broadcast to all
// members of a room (distinct from the per-recipient ServerCommand envelope
// that carries them).
type MessageType uint8

const (
	MessageChat MessageType = iota
	MessageCreateRoom
	MessageJoinRoom
	MessageLeaveRoom
	MessageNewHost
	MessageSelectChart
	MessageGameStart
	MessageReady
	MessageCancelReady
	MessageCancelGame
	MessageStartPlaying
	MessagePlayed
	MessageGameEnd
	MessageAbort
	MessageLockRoom
	MessageCycleRoom
)

func (t MessageType) valid() bool { return t <= MessageCycleRoom }

// Message is a single room-broadcast event. Only the fields relevant to Type
// are populated; see the New* constructors.
type Message struct {
	Type      MessageType
	User      int32
	Content   string
	ChartID   int32
	Score     int32
	Accuracy  float32
	FullCombo bool
	Flag      bool
}

func NewChatMessage(user int32, content string) Message {
	return Message{Type: MessageChat, User: user, Content: content}
}

func NewCreateRoomMessage(user int32) Message {
	return Message{Type: MessageCreateRoom, User: user}
}

func NewJoinRoomMessage(user int32, name string) Message {
	return Message{Type: MessageJoinRoom, User: user, Content: name}
}

func NewLeaveRoomMessage(user int32, name string) Message {
	return Message{Type: MessageLeaveRoom, User: user, Content: name}
}

func NewNewHostMessage(user int32) Message {
	return Message{Type: MessageNewHost, User: user}
}

func NewSelectChartMessage(user int32, name string, chartID int32) Message {
	return Message{Type: MessageSelectChart, User: user, Content: name, ChartID: chartID}
}

func NewGameStartMessage(user int32) Message {
	return Message{Type: MessageGameStart, User: user}
}

func NewReadyMessage(user int32) Message {
	return Message{Type: MessageReady, User: user}
}

func NewCancelReadyMessage(user int32) Message {
	return Message{Type: MessageCancelReady, User: user}
}

func NewCancelGameMessage(user int32) Message {
	return Message{Type: MessageCancelGame, User: user}
}

func NewStartPlayingMessage() Message {
	return Message{Type: MessageStartPlaying}
}

func NewPlayedMessage(user int32, score int32, accuracy float32, fullCombo bool) Message {
	return Message{Type: MessagePlayed, User: user, Score: score, Accuracy: accuracy, FullCombo: fullCombo}
}

func NewGameEndMessage() Message {
	return Message{Type: MessageGameEnd}
}

func NewAbortMessage(user int32) Message {
	return Message{Type: MessageAbort, User: user}
}

func NewLockRoomMessage(locked bool) Message {
	return Message{Type: MessageLockRoom, Flag: locked}
}

func NewCycleRoomMessage(cycle bool) Message {
	return Message{Type: MessageCycleRoom, Flag: cycle}
}

func (w *Writer) WriteMessage(m Message) {
	w.U8(uint8(m.Type))
	switch m.Type {
	case MessageChat:
		w.I32(m.User)
		w.String(m.Content)
	case MessageCreateRoom:
		w.I32(m.User)
	case MessageJoinRoom:
		w.I32(m.User)
		w.String(m.Content)
	case MessageLeaveRoom:
		w.I32(m.User)
		w.String(m.Content)
	case MessageNewHost:
		w.I32(m.User)
	case MessageSelectChart:
		w.I32(m.User)
		w.String(m.Content)
		w.I32(m.ChartID)
	case MessageGameStart:
		w.I32(m.User)
	case MessageReady:
		w.I32(m.User)
	case MessageCancelReady:
		w.I32(m.User)
	case MessageCancelGame:
		w.I32(m.User)
	case MessageStartPlaying:
	case MessagePlayed:
		w.I32(m.User)
		w.I32(m.Score)
		w.F32(m.Accuracy)
		w.Bool(m.FullCombo)
	case MessageGameEnd:
	case MessageAbort:
		w.I32(m.User)
	case MessageLockRoom:
		w.Bool(m.Flag)
	case MessageCycleRoom:
		w.Bool(m.Flag)
	}
}

func (r *Reader) ReadMessage() (Message, error) {
	tb, err := r.U8()
	if err != nil {
		return Message{}, err
	}
	t := MessageType(tb)
	if !t.valid() {
		return Message{}, protoErr("message", fmt.Errorf("invalid message discriminant %d", tb))
	}
	m := Message{Type: t}
	switch t {
	case MessageChat:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
		if m.Content, err = r.Varchar(200); err != nil {
			return Message{}, err
		}
	case MessageCreateRoom:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
	case MessageJoinRoom, MessageLeaveRoom:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
		if m.Content, err = r.String(); err != nil {
			return Message{}, err
		}
	case MessageNewHost:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
	case MessageSelectChart:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
		if m.Content, err = r.String(); err != nil {
			return Message{}, err
		}
		if m.ChartID, err = r.I32(); err != nil {
			return Message{}, err
		}
	case MessageGameStart, MessageReady, MessageCancelReady, MessageCancelGame, MessageAbort:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
	case MessageStartPlaying, MessageGameEnd:
		// no payload
	case MessagePlayed:
		if m.User, err = r.I32(); err != nil {
			return Message{}, err
		}
		if m.Score, err = r.I32(); err != nil {
			return Message{}, err
		}
		if m.Accuracy, err = r.F32(); err != nil {
			return Message{}, err
		}
		if m.FullCombo, err = r.Bool(); err != nil {
			return Message{}, err
		}
	case MessageLockRoom, MessageCycleRoom:
		if m.Flag, err = r.Bool(); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}
