package collab

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/rhythmmp/server/internal/domain"
	"github.com/rhythmmp/server/internal/wire"
)

// RuleFunc is one named, independently testable filter step: given the
// resolved params and a gjson projection of the command, it reports whether
// the command should still be allowed through. Generalized from the
// teacher's pipeline.ActionFunc (a Cargo plus string params) onto a
// ClientCommand Cargo instead of an HTTP-sourced JSON payload.
type RuleFunc func(user *domain.User, payload gjson.Result, params []string) bool

// Rule binds a registered RuleFunc name to the params it should run with for
// one ClientCommandType.
type Rule struct {
	Name   string
	Params []string
}

// PipelineFilter is a CommandFilter built from named rules per command type,
// generalized from the teacher's internal/engine action registry + JSON
// config-driven pipelines (pkg/config.ActionConfig/CompilePipelines), here
// keyed on the binary protocol's ClientCommandType instead of a string event
// name.
type PipelineFilter struct {
	mu    sync.RWMutex
	rules map[wire.ClientCommandType][]Rule
	funcs map[string]RuleFunc
}

// NewPipelineFilter builds an empty filter; callers register rules with
// AddRule and functions with RegisterFunc (the core ships one built-in,
// _max_chat_len, registered by NewDefaultPipelineFilter).
func NewPipelineFilter() *PipelineFilter {
	return &PipelineFilter{
		rules: make(map[wire.ClientCommandType][]Rule),
		funcs: make(map[string]RuleFunc),
	}
}

// NewDefaultPipelineFilter builds a filter with the core's built-in rule
// functions registered, ready for AddRule calls from loaded configuration.
func NewDefaultPipelineFilter() *PipelineFilter {
	f := NewPipelineFilter()
	f.RegisterFunc("_max_chat_len", maxChatLen)
	return f
}

func (f *PipelineFilter) RegisterFunc(name string, fn RuleFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[name] = fn
}

func (f *PipelineFilter) AddRule(cmdType wire.ClientCommandType, rule Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[cmdType] = append(f.rules[cmdType], rule)
}

var _ CommandFilter = (*PipelineFilter)(nil)

func (f *PipelineFilter) Allow(_ context.Context, user *domain.User, cmd wire.ClientCommand) bool {
	f.mu.RLock()
	rules := f.rules[cmd.Type]
	f.mu.RUnlock()
	if len(rules) == 0 {
		return true
	}

	raw, err := json.Marshal(commandProjection{
		Token:   cmd.Token,
		Message: cmd.Message,
		RoomID:  string(cmd.RoomID),
		Monitor: cmd.Monitor,
		Flag:    cmd.Flag,
		ChartID: cmd.ChartID,
	})
	if err != nil {
		return true
	}
	payload := gjson.ParseBytes(raw)

	for _, rule := range rules {
		f.mu.RLock()
		fn, ok := f.funcs[rule.Name]
		f.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(user, payload, rule.Params) {
			return false
		}
	}
	return true
}

// commandProjection is the JSON shape gjson rules see. Only fields rules
// plausibly need are projected; Touches/Judges frames are deliberately
// excluded since no shipped rule inspects them.
type commandProjection struct {
	Token   string `json:"token"`
	Message string `json:"message"`
	RoomID  string `json:"room_id"`
	Monitor bool   `json:"monitor"`
	Flag    bool   `json:"flag"`
	ChartID int32  `json:"chart_id"`
}

func maxChatLen(_ *domain.User, payload gjson.Result, params []string) bool {
	if len(params) == 0 {
		return true
	}
	max, err := strconv.Atoi(params[0])
	if err != nil || max <= 0 {
		return true
	}
	return len(payload.Get("message").String()) <= max
}
