package wire

import "fmt"

// ServerCommandType discriminates the commands a server may send back to a
// client.
type ServerCommandType uint8

const (
	ServerPong ServerCommandType = iota
	ServerAuthenticate
	ServerChat
	ServerTouches
	ServerJudges
	ServerMessage
	ServerChangeState
	ServerChangeHost
	ServerCreateRoom
	ServerJoinRoom
	ServerOnJoinRoom
	ServerLeaveRoom
	ServerLockRoom
	ServerCycleRoom
	ServerSelectChart
	ServerRequestStart
	ServerReady
	ServerCancelReady
	ServerPlayed
	ServerAbort
)

func (t ServerCommandType) valid() bool { return t <= ServerAbort }

// isSimpleAck reports the command types whose payload is exactly
// ok:bool [error_msg:string if !ok], mirroring a client command's
// acknowledgement.
func isSimpleAck(t ServerCommandType) bool {
	switch t {
	case ServerChat, ServerCreateRoom, ServerLeaveRoom, ServerLockRoom,
		ServerCycleRoom, ServerSelectChart, ServerRequestStart, ServerReady,
		ServerCancelReady, ServerPlayed, ServerAbort:
		return true
	}
	return false
}

// ServerCommand is a single outbound command to a client. Only the fields
// relevant to Type are populated; use the New* constructors rather than
// building one by hand.
type ServerCommand struct {
	Type ServerCommandType

	OK    bool
	Error string

	AuthUser  UserInfo
	AuthRoom  *ClientRoomState
	PlayerID  int32
	Frames    []TouchFrame
	Judges    []JudgeEvent
	Message   Message
	RoomState RoomState
	IsHost    bool
	JoinResp  JoinRoomResponse
	JoinUser  UserInfo
}

func NewPong() ServerCommand { return ServerCommand{Type: ServerPong} }

func NewAuthenticateOK(user UserInfo, room *ClientRoomState) ServerCommand {
	return ServerCommand{Type: ServerAuthenticate, OK: true, AuthUser: user, AuthRoom: room}
}

func NewAuthenticateErr(msg string) ServerCommand {
	return ServerCommand{Type: ServerAuthenticate, OK: false, Error: msg}
}

func NewSimpleOK(t ServerCommandType) ServerCommand {
	return ServerCommand{Type: t, OK: true}
}

func NewSimpleErr(t ServerCommandType, msg string) ServerCommand {
	return ServerCommand{Type: t, OK: false, Error: msg}
}

func NewTouches(playerID int32, frames []TouchFrame) ServerCommand {
	return ServerCommand{Type: ServerTouches, PlayerID: playerID, Frames: frames}
}

func NewJudges(playerID int32, judges []JudgeEvent) ServerCommand {
	return ServerCommand{Type: ServerJudges, PlayerID: playerID, Judges: judges}
}

func NewServerMessage(m Message) ServerCommand {
	return ServerCommand{Type: ServerMessage, Message: m}
}

func NewChangeState(s RoomState) ServerCommand {
	return ServerCommand{Type: ServerChangeState, RoomState: s}
}

func NewChangeHost(isHost bool) ServerCommand {
	return ServerCommand{Type: ServerChangeHost, IsHost: isHost}
}

func NewJoinRoomOK(resp JoinRoomResponse) ServerCommand {
	return ServerCommand{Type: ServerJoinRoom, OK: true, JoinResp: resp}
}

func NewJoinRoomErr(msg string) ServerCommand {
	return ServerCommand{Type: ServerJoinRoom, OK: false, Error: msg}
}

func NewOnJoinRoom(u UserInfo) ServerCommand {
	return ServerCommand{Type: ServerOnJoinRoom, JoinUser: u}
}

func (w *Writer) WriteServerCommand(c ServerCommand) {
	w.U8(uint8(c.Type))
	switch {
	case c.Type == ServerPong:
	case c.Type == ServerAuthenticate:
		w.Bool(c.OK)
		if c.OK {
			w.WriteUserInfo(c.AuthUser)
			if c.AuthRoom != nil {
				w.Bool(true)
				w.WriteClientRoomState(*c.AuthRoom)
			} else {
				w.Bool(false)
			}
		} else {
			w.String(c.Error)
		}
	case isSimpleAck(c.Type):
		w.Bool(c.OK)
		if !c.OK {
			w.String(c.Error)
		}
	case c.Type == ServerTouches:
		w.I32(c.PlayerID)
		w.Uleb(uint64(len(c.Frames)))
		for _, f := range c.Frames {
			w.WriteTouchFrame(f)
		}
	case c.Type == ServerJudges:
		w.I32(c.PlayerID)
		w.Uleb(uint64(len(c.Judges)))
		for _, j := range c.Judges {
			w.WriteJudgeEvent(j)
		}
	case c.Type == ServerMessage:
		w.WriteMessage(c.Message)
	case c.Type == ServerChangeState:
		w.WriteRoomState(c.RoomState)
	case c.Type == ServerChangeHost:
		w.Bool(c.IsHost)
	case c.Type == ServerJoinRoom:
		w.Bool(c.OK)
		if c.OK {
			w.WriteJoinRoomResponse(c.JoinResp)
		} else {
			w.String(c.Error)
		}
	case c.Type == ServerOnJoinRoom:
		w.WriteUserInfo(c.JoinUser)
	}
}

// ReadServerCommand decodes one ServerCommand. It exists for tests and for
// any client-side tooling that might be layered on this package; production
// servers only ever encode ServerCommands.
func (r *Reader) ReadServerCommand() (ServerCommand, error) {
	tb, err := r.U8()
	if err != nil {
		return ServerCommand{}, err
	}
	t := ServerCommandType(tb)
	if !t.valid() {
		return ServerCommand{}, protoErr("server_command", fmt.Errorf("invalid server command discriminant %d", tb))
	}
	c := ServerCommand{Type: t}
	switch {
	case t == ServerPong:
	case t == ServerAuthenticate:
		if c.OK, err = r.Bool(); err != nil {
			return ServerCommand{}, err
		}
		if c.OK {
			if c.AuthUser, err = r.ReadUserInfo(); err != nil {
				return ServerCommand{}, err
			}
			has, err := r.Bool()
			if err != nil {
				return ServerCommand{}, err
			}
			if has {
				rs, err := r.ReadClientRoomState()
				if err != nil {
					return ServerCommand{}, err
				}
				c.AuthRoom = &rs
			}
		} else {
			if c.Error, err = r.String(); err != nil {
				return ServerCommand{}, err
			}
		}
	case isSimpleAck(t):
		if c.OK, err = r.Bool(); err != nil {
			return ServerCommand{}, err
		}
		if !c.OK {
			if c.Error, err = r.String(); err != nil {
				return ServerCommand{}, err
			}
		}
	case t == ServerTouches:
		if c.PlayerID, err = r.I32(); err != nil {
			return ServerCommand{}, err
		}
		n, err := r.Uleb()
		if err != nil {
			return ServerCommand{}, err
		}
		frames := make([]TouchFrame, 0, n)
		for i := uint64(0); i < n; i++ {
			f, err := r.ReadTouchFrame()
			if err != nil {
				return ServerCommand{}, err
			}
			frames = append(frames, f)
		}
		c.Frames = frames
	case t == ServerJudges:
		if c.PlayerID, err = r.I32(); err != nil {
			return ServerCommand{}, err
		}
		n, err := r.Uleb()
		if err != nil {
			return ServerCommand{}, err
		}
		judges := make([]JudgeEvent, 0, n)
		for i := uint64(0); i < n; i++ {
			j, err := r.ReadJudgeEvent()
			if err != nil {
				return ServerCommand{}, err
			}
			judges = append(judges, j)
		}
		c.Judges = judges
	case t == ServerMessage:
		if c.Message, err = r.ReadMessage(); err != nil {
			return ServerCommand{}, err
		}
	case t == ServerChangeState:
		if c.RoomState, err = r.ReadRoomState(); err != nil {
			return ServerCommand{}, err
		}
	case t == ServerChangeHost:
		if c.IsHost, err = r.Bool(); err != nil {
			return ServerCommand{}, err
		}
	case t == ServerJoinRoom:
		if c.OK, err = r.Bool(); err != nil {
			return ServerCommand{}, err
		}
		if c.OK {
			if c.JoinResp, err = r.ReadJoinRoomResponse(); err != nil {
				return ServerCommand{}, err
			}
		} else {
			if c.Error, err = r.String(); err != nil {
				return ServerCommand{}, err
			}
		}
	case t == ServerOnJoinRoom:
		if c.JoinUser, err = r.ReadUserInfo(); err != nil {
			return ServerCommand{}, err
		}
	}
	return c, nil
}
