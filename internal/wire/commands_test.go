package wire

import (
	"io"
	"reflect"
	"testing"
)

func TestClientCommandRoundTripAllVariants(t *testing.T) {
	cases := []ClientCommand{
		{Type: ClientPing},
		{Type: ClientAuthenticate, Token: "tok-123"},
		{Type: ClientChat, Message: "gg"},
		{Type: ClientTouches, Frames: []TouchFrame{{Time: 1.5, Points: []TouchPoint{{PointerID: 2, Pos: CompactPos{X: 1, Y: 2}}}}}},
		{Type: ClientJudges, Judges: []JudgeEvent{{Time: 1, LineID: 2, NoteID: 3, Judgement: JudgementPerfect}}},
		{Type: ClientCreateRoom, RoomID: "abc123"},
		{Type: ClientJoinRoom, RoomID: "abc123", Monitor: true},
		{Type: ClientLeaveRoom},
		{Type: ClientLockRoom, Flag: true},
		{Type: ClientCycleRoom, Flag: false},
		{Type: ClientSelectChart, ChartID: 42},
		{Type: ClientRequestStart},
		{Type: ClientReady},
		{Type: ClientCancelReady},
		{Type: ClientPlayed, ChartID: 7},
		{Type: ClientAbort},
	}
	for _, c := range cases {
		w := NewWriter(0)
		w.WriteClientCommand(c)
		r := NewReader(w.Bytes())
		got, err := r.ReadClientCommand()
		if err != nil {
			t.Fatalf("%v: decode error: %v", c.Type, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("%v: round trip mismatch: got %+v, want %+v", c.Type, got, c)
		}
		if r.Remaining() != 0 {
			t.Fatalf("%v: %d trailing bytes", c.Type, r.Remaining())
		}
	}
}

func TestClientCommandRejectsInvalidDiscriminant(t *testing.T) {
	r := NewReader([]byte{200})
	if _, err := r.ReadClientCommand(); err == nil {
		t.Fatal("expected error for unknown client command discriminant")
	}
}

func TestServerCommandRoundTripAllVariants(t *testing.T) {
	room := "abc"
	chartID := int32(5)
	cases := []ServerCommand{
		NewPong(),
		NewAuthenticateOK(UserInfo{ID: 1, Name: "a"}, nil),
		NewAuthenticateOK(UserInfo{ID: 1, Name: "a"}, &ClientRoomState{
			ID: RoomID(room), State: RoomState{Kind: RoomStateSelectChart, ChartID: &chartID},
			Users: map[int32]UserInfo{1: {ID: 1, Name: "a"}},
		}),
		NewAuthenticateErr("bad token"),
		NewSimpleOK(ServerChat),
		NewSimpleErr(ServerCreateRoom, "room exists"),
		NewTouches(3, []TouchFrame{{Time: 1, Points: nil}}),
		NewJudges(3, []JudgeEvent{{Time: 1, LineID: 1, NoteID: 1, Judgement: JudgementMiss}}),
		NewServerMessage(NewChatMessage(1, "hi")),
		NewChangeState(RoomState{Kind: RoomStatePlaying}),
		NewChangeHost(true),
		NewJoinRoomOK(JoinRoomResponse{State: RoomState{Kind: RoomStateWaitingForReady}, Users: []UserInfo{{ID: 1, Name: "a"}}, Live: false}),
		NewJoinRoomErr("room locked"),
		NewOnJoinRoom(UserInfo{ID: 9, Name: "b", Monitor: true}),
	}
	for _, c := range cases {
		w := NewWriter(0)
		w.WriteServerCommand(c)
		r := NewReader(w.Bytes())
		got, err := r.ReadServerCommand()
		if err != nil {
			t.Fatalf("%v: decode error: %v", c.Type, err)
		}
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("%v: round trip mismatch: got %+v, want %+v", c.Type, got, c)
		}
		if r.Remaining() != 0 {
			t.Fatalf("%v: %d trailing bytes", c.Type, r.Remaining())
		}
	}
}

func TestMessageRoundTripAllVariants(t *testing.T) {
	cases := []Message{
		NewChatMessage(1, "hello"),
		NewCreateRoomMessage(1),
		NewJoinRoomMessage(1, "alice"),
		NewLeaveRoomMessage(1, "alice"),
		NewNewHostMessage(2),
		NewSelectChartMessage(1, "alice", 99),
		NewGameStartMessage(1),
		NewReadyMessage(1),
		NewCancelReadyMessage(1),
		NewCancelGameMessage(1),
		NewStartPlayingMessage(),
		NewPlayedMessage(1, 990000, 0.995, true),
		NewGameEndMessage(),
		NewAbortMessage(1),
		NewLockRoomMessage(true),
		NewCycleRoomMessage(false),
	}
	for _, m := range cases {
		w := NewWriter(0)
		w.WriteMessage(m)
		r := NewReader(w.Bytes())
		got, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("%v: decode error: %v", m.Type, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("%v: round trip mismatch: got %+v, want %+v", m.Type, got, m)
		}
		if r.Remaining() != 0 {
			t.Fatalf("%v: %d trailing bytes", m.Type, r.Remaining())
		}
	}
}

func TestRoomStateRoundTrip(t *testing.T) {
	id := int32(17)
	cases := []RoomState{
		{Kind: RoomStateSelectChart, ChartID: nil},
		{Kind: RoomStateSelectChart, ChartID: &id},
		{Kind: RoomStateWaitingForReady},
		{Kind: RoomStatePlaying},
	}
	for _, rs := range cases {
		w := NewWriter(0)
		w.WriteRoomState(rs)
		r := NewReader(w.Bytes())
		got, err := r.ReadRoomState()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if got.Kind != rs.Kind {
			t.Fatalf("kind mismatch: got %v, want %v", got.Kind, rs.Kind)
		}
		if (got.ChartID == nil) != (rs.ChartID == nil) {
			t.Fatalf("chart id presence mismatch")
		}
		if got.ChartID != nil && *got.ChartID != *rs.ChartID {
			t.Fatalf("chart id mismatch: got %v, want %v", *got.ChartID, *rs.ChartID)
		}
	}
}

func TestRoomIDValidation(t *testing.T) {
	valid := []string{"a", "abc-DEF_123", "12345678901234567890"}
	invalid := []string{"", "123456789012345678901", "has space", "slash/here", "emoji😀"}
	for _, s := range valid {
		if !ValidRoomID(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range invalid {
		if ValidRoomID(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestReadRoomIDRejectsOverLongOrInvalid(t *testing.T) {
	w := NewWriter(0)
	w.String("this-room-id-is-definitely-too-long")
	r := NewReader(w.Bytes())
	if _, err := r.ReadRoomID(); err == nil {
		t.Fatal("expected error decoding over-long room id")
	}

	w2 := NewWriter(0)
	w2.String("bad room")
	r2 := NewReader(w2.Bytes())
	if _, err := r2.ReadRoomID(); err == nil {
		t.Fatal("expected error decoding room id with space")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.WriteServerCommand(NewPong())
	payload := w.Bytes()

	var buf []byte
	bw := &sliceWriter{buf: &buf}
	if err := WriteFrame(bw, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&sliceReader{buf: buf})
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !reflect.DeepEqual(got, payload) {
		t.Fatalf("frame payload mismatch: got %v, want %v", got, payload)
	}
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

type sliceReader struct {
	buf []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}
