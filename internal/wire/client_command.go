package wire

import "fmt"

// ClientCommandType discriminates the commands a client may send.
type ClientCommandType uint8

const (
	ClientPing ClientCommandType = iota
	ClientAuthenticate
	ClientChat
	ClientTouches
	ClientJudges
	ClientCreateRoom
	ClientJoinRoom
	ClientLeaveRoom
	ClientLockRoom
	ClientCycleRoom
	ClientSelectChart
	ClientRequestStart
	ClientReady
	ClientCancelReady
	ClientPlayed
	ClientAbort
)

func (t ClientCommandType) valid() bool { return t <= ClientAbort }

// ClientCommand is a decoded, tagged command received from a client. Only the
// fields relevant to Type are populated.
type ClientCommand struct {
	Type ClientCommandType

	Token   string // Authenticate
	Message string // Chat

	Frames []TouchFrame // Touches
	Judges []JudgeEvent // Judges

	RoomID  RoomID // CreateRoom, JoinRoom
	Monitor bool   // JoinRoom

	Flag bool // LockRoom, CycleRoom

	ChartID int32 // SelectChart, Played
}

// ReadClientCommand decodes one ClientCommand from the start of r.
func (r *Reader) ReadClientCommand() (ClientCommand, error) {
	tb, err := r.U8()
	if err != nil {
		return ClientCommand{}, err
	}
	t := ClientCommandType(tb)
	if !t.valid() {
		return ClientCommand{}, protoErr("client_command", fmt.Errorf("invalid client command discriminant %d", tb))
	}
	c := ClientCommand{Type: t}
	switch t {
	case ClientPing:
	case ClientAuthenticate:
		if c.Token, err = r.Varchar(32); err != nil {
			return ClientCommand{}, err
		}
	case ClientChat:
		if c.Message, err = r.Varchar(200); err != nil {
			return ClientCommand{}, err
		}
	case ClientTouches:
		n, err := r.Uleb()
		if err != nil {
			return ClientCommand{}, err
		}
		frames := make([]TouchFrame, 0, n)
		for i := uint64(0); i < n; i++ {
			f, err := r.ReadTouchFrame()
			if err != nil {
				return ClientCommand{}, err
			}
			frames = append(frames, f)
		}
		c.Frames = frames
	case ClientJudges:
		n, err := r.Uleb()
		if err != nil {
			return ClientCommand{}, err
		}
		judges := make([]JudgeEvent, 0, n)
		for i := uint64(0); i < n; i++ {
			j, err := r.ReadJudgeEvent()
			if err != nil {
				return ClientCommand{}, err
			}
			judges = append(judges, j)
		}
		c.Judges = judges
	case ClientCreateRoom:
		if c.RoomID, err = r.ReadRoomID(); err != nil {
			return ClientCommand{}, err
		}
	case ClientJoinRoom:
		if c.RoomID, err = r.ReadRoomID(); err != nil {
			return ClientCommand{}, err
		}
		if c.Monitor, err = r.Bool(); err != nil {
			return ClientCommand{}, err
		}
	case ClientLeaveRoom:
	case ClientLockRoom:
		if c.Flag, err = r.Bool(); err != nil {
			return ClientCommand{}, err
		}
	case ClientCycleRoom:
		if c.Flag, err = r.Bool(); err != nil {
			return ClientCommand{}, err
		}
	case ClientSelectChart:
		if c.ChartID, err = r.I32(); err != nil {
			return ClientCommand{}, err
		}
	case ClientRequestStart:
	case ClientReady:
	case ClientCancelReady:
	case ClientPlayed:
		if c.ChartID, err = r.I32(); err != nil {
			return ClientCommand{}, err
		}
	case ClientAbort:
	}
	return c, nil
}

// WriteClientCommand encodes c. It exists mainly for tests and for any
// administrative tooling that needs to synthesize client traffic; production
// servers only ever decode ClientCommands.
func (w *Writer) WriteClientCommand(c ClientCommand) {
	w.U8(uint8(c.Type))
	switch c.Type {
	case ClientPing:
	case ClientAuthenticate:
		w.String(c.Token)
	case ClientChat:
		w.String(c.Message)
	case ClientTouches:
		w.Uleb(uint64(len(c.Frames)))
		for _, f := range c.Frames {
			w.WriteTouchFrame(f)
		}
	case ClientJudges:
		w.Uleb(uint64(len(c.Judges)))
		for _, j := range c.Judges {
			w.WriteJudgeEvent(j)
		}
	case ClientCreateRoom:
		w.WriteRoomID(c.RoomID)
	case ClientJoinRoom:
		w.WriteRoomID(c.RoomID)
		w.Bool(c.Monitor)
	case ClientLeaveRoom:
	case ClientLockRoom, ClientCycleRoom:
		w.Bool(c.Flag)
	case ClientSelectChart:
		w.I32(c.ChartID)
	case ClientRequestStart, ClientReady, ClientCancelReady, ClientAbort:
	case ClientPlayed:
		w.I32(c.ChartID)
	}
}
