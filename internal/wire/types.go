package wire

import "fmt"

// SessionID is the 128-bit random identifier assigned to a TCP connection for
// its lifetime.
type SessionID struct {
	Lo, Hi uint64
}

func (id SessionID) String() string {
	return fmt.Sprintf("%016x%016x", id.Hi, id.Lo)
}

func (r *Reader) ReadSessionID() (SessionID, error) {
	lo, hi, err := r.UUID()
	if err != nil {
		return SessionID{}, err
	}
	return SessionID{Lo: lo, Hi: hi}, nil
}

func (w *Writer) WriteSessionID(id SessionID) {
	w.UUID(id.Lo, id.Hi)
}

// CompactPos is a pair of half-precision floats used in touch frames to
// reduce bandwidth.
type CompactPos struct {
	X, Y float32
}

func (r *Reader) ReadCompactPos() (CompactPos, error) {
	x, err := r.F16()
	if err != nil {
		return CompactPos{}, err
	}
	y, err := r.F16()
	if err != nil {
		return CompactPos{}, err
	}
	return CompactPos{X: x, Y: y}, nil
}

func (w *Writer) WriteCompactPos(p CompactPos) {
	w.F16(p.X)
	w.F16(p.Y)
}

// TouchPoint is one (pointer id, position) pair inside a TouchFrame.
type TouchPoint struct {
	PointerID int8
	Pos       CompactPos
}

// TouchFrame is one instant of multi-touch input: a timestamp plus the set of
// active touch points.
type TouchFrame struct {
	Time   float32
	Points []TouchPoint
}

func (r *Reader) ReadTouchFrame() (TouchFrame, error) {
	t, err := r.F32()
	if err != nil {
		return TouchFrame{}, err
	}
	n, err := r.Uleb()
	if err != nil {
		return TouchFrame{}, err
	}
	var points []TouchPoint
	for i := uint64(0); i < n; i++ {
		pid, err := r.I8()
		if err != nil {
			return TouchFrame{}, err
		}
		pos, err := r.ReadCompactPos()
		if err != nil {
			return TouchFrame{}, err
		}
		points = append(points, TouchPoint{PointerID: pid, Pos: pos})
	}
	return TouchFrame{Time: t, Points: points}, nil
}

func (w *Writer) WriteTouchFrame(f TouchFrame) {
	w.F32(f.Time)
	w.Uleb(uint64(len(f.Points)))
	for _, p := range f.Points {
		w.I8(p.PointerID)
		w.WriteCompactPos(p.Pos)
	}
}

// Judgement is the outcome of a single note hit.
type Judgement uint8

const (
	JudgementPerfect Judgement = iota
	JudgementGood
	JudgementBad
	JudgementMiss
	JudgementHoldPerfect
	JudgementHoldGood
)

func (j Judgement) valid() bool { return j <= JudgementHoldGood }

// JudgeEvent is one scored note judgement.
type JudgeEvent struct {
	Time      float32
	LineID    uint32
	NoteID    uint32
	Judgement Judgement
}

func (r *Reader) ReadJudgeEvent() (JudgeEvent, error) {
	t, err := r.F32()
	if err != nil {
		return JudgeEvent{}, err
	}
	line, err := r.U32()
	if err != nil {
		return JudgeEvent{}, err
	}
	note, err := r.U32()
	if err != nil {
		return JudgeEvent{}, err
	}
	jb, err := r.U8()
	if err != nil {
		return JudgeEvent{}, err
	}
	j := Judgement(jb)
	if !j.valid() {
		return JudgeEvent{}, protoErr("judgement", fmt.Errorf("invalid judgement discriminant %d", jb))
	}
	return JudgeEvent{Time: t, LineID: line, NoteID: note, Judgement: j}, nil
}

func (w *Writer) WriteJudgeEvent(e JudgeEvent) {
	w.F32(e.Time)
	w.U32(e.LineID)
	w.U32(e.NoteID)
	w.U8(uint8(e.Judgement))
}

// UserInfo is the client-visible identity of a user.
type UserInfo struct {
	ID      int32
	Name    string
	Monitor bool
}

func (r *Reader) ReadUserInfo() (UserInfo, error) {
	id, err := r.I32()
	if err != nil {
		return UserInfo{}, err
	}
	name, err := r.String()
	if err != nil {
		return UserInfo{}, err
	}
	monitor, err := r.Bool()
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{ID: id, Name: name, Monitor: monitor}, nil
}

func (w *Writer) WriteUserInfo(u UserInfo) {
	w.I32(u.ID)
	w.String(u.Name)
	w.Bool(u.Monitor)
}

// RoomStateKind is the client-facing room-state discriminant (a coarser view
// than the domain package's internal room state: it drops the started/results
// bookkeeping and keeps only the currently-selected chart id).
type RoomStateKind uint8

const (
	RoomStateSelectChart RoomStateKind = iota
	RoomStateWaitingForReady
	RoomStatePlaying
)

// RoomState is the wire projection of a room's internal state.
type RoomState struct {
	Kind    RoomStateKind
	ChartID *int32 // only meaningful when Kind == RoomStateSelectChart
}

func (r *Reader) ReadRoomState() (RoomState, error) {
	kb, err := r.U8()
	if err != nil {
		return RoomState{}, err
	}
	kind := RoomStateKind(kb)
	if kind > RoomStatePlaying {
		return RoomState{}, protoErr("room_state", fmt.Errorf("invalid room state discriminant %d", kb))
	}
	rs := RoomState{Kind: kind}
	if kind == RoomStateSelectChart {
		has, err := r.Bool()
		if err != nil {
			return RoomState{}, err
		}
		if has {
			id, err := r.I32()
			if err != nil {
				return RoomState{}, err
			}
			rs.ChartID = &id
		}
	}
	return rs, nil
}

func (w *Writer) WriteRoomState(rs RoomState) {
	w.U8(uint8(rs.Kind))
	if rs.Kind == RoomStateSelectChart {
		if rs.ChartID != nil {
			w.Bool(true)
			w.I32(*rs.ChartID)
		} else {
			w.Bool(false)
		}
	}
}

// ClientRoomState is the full room snapshot sent back to a reconnecting or
// just-authenticated user.
type ClientRoomState struct {
	ID      RoomID
	State   RoomState
	Live    bool
	Locked  bool
	Cycle   bool
	IsHost  bool
	IsReady bool
	Users   map[int32]UserInfo
}

func (r *Reader) ReadClientRoomState() (ClientRoomState, error) {
	id, err := r.ReadRoomID()
	if err != nil {
		return ClientRoomState{}, err
	}
	state, err := r.ReadRoomState()
	if err != nil {
		return ClientRoomState{}, err
	}
	live, err := r.Bool()
	if err != nil {
		return ClientRoomState{}, err
	}
	locked, err := r.Bool()
	if err != nil {
		return ClientRoomState{}, err
	}
	cycle, err := r.Bool()
	if err != nil {
		return ClientRoomState{}, err
	}
	isHost, err := r.Bool()
	if err != nil {
		return ClientRoomState{}, err
	}
	isReady, err := r.Bool()
	if err != nil {
		return ClientRoomState{}, err
	}
	n, err := r.Uleb()
	if err != nil {
		return ClientRoomState{}, err
	}
	users := make(map[int32]UserInfo, n)
	for i := uint64(0); i < n; i++ {
		k, err := r.I32()
		if err != nil {
			return ClientRoomState{}, err
		}
		u, err := r.ReadUserInfo()
		if err != nil {
			return ClientRoomState{}, err
		}
		users[k] = u
	}
	return ClientRoomState{
		ID: id, State: state, Live: live, Locked: locked, Cycle: cycle,
		IsHost: isHost, IsReady: isReady, Users: users,
	}, nil
}

func (w *Writer) WriteClientRoomState(cs ClientRoomState) {
	w.WriteRoomID(cs.ID)
	w.WriteRoomState(cs.State)
	w.Bool(cs.Live)
	w.Bool(cs.Locked)
	w.Bool(cs.Cycle)
	w.Bool(cs.IsHost)
	w.Bool(cs.IsReady)
	w.Uleb(uint64(len(cs.Users)))
	for k, v := range cs.Users {
		w.I32(k)
		w.WriteUserInfo(v)
	}
}

// JoinRoomResponse is returned to a user who successfully joined a room.
type JoinRoomResponse struct {
	State RoomState
	Users []UserInfo
	Live  bool
}

func (r *Reader) ReadJoinRoomResponse() (JoinRoomResponse, error) {
	state, err := r.ReadRoomState()
	if err != nil {
		return JoinRoomResponse{}, err
	}
	n, err := r.Uleb()
	if err != nil {
		return JoinRoomResponse{}, err
	}
	users := make([]UserInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		u, err := r.ReadUserInfo()
		if err != nil {
			return JoinRoomResponse{}, err
		}
		users = append(users, u)
	}
	live, err := r.Bool()
	if err != nil {
		return JoinRoomResponse{}, err
	}
	return JoinRoomResponse{State: state, Users: users, Live: live}, nil
}

func (w *Writer) WriteJoinRoomResponse(jr JoinRoomResponse) {
	w.WriteRoomState(jr.State)
	w.Uleb(uint64(len(jr.Users)))
	for _, u := range jr.Users {
		w.WriteUserInfo(u)
	}
	w.Bool(jr.Live)
}
