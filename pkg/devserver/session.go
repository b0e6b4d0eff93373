package devserver

import (
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mirageui/mirage/internal/errors"
	"github.com/mirageui/mirage/pkg/decl"
	"github.com/mirageui/mirage/pkg/expr"
	fieldsync "github.com/mirageui/mirage/pkg/sync"
)

const (
	sessionWriteTimeout = 10 * time.Second
	sessionOutBuffer    = 64
)

// session is one connected client. All frame handling runs on the read
// goroutine, so state access needs no locking; outgoing frames go
// through the out channel's single writer.
type session struct {
	id    string
	conn  *websocket.Conn
	units map[string]*unitRuntime
	log   *slog.Logger

	// state["unit"]["field"] is this session's authoritative value.
	state map[string]expr.Env

	out  chan []byte
	done chan struct{}
}

func newSession(id string, conn *websocket.Conn, units map[string]*unitRuntime, log *slog.Logger) *session {
	return &session{
		id:    id,
		conn:  conn,
		units: units,
		log:   log.With("session", id),
		state: make(map[string]expr.Env),
		out:   make(chan []byte, sessionOutBuffer),
		done:  make(chan struct{}),
	}
}

// run serves the session until the connection drops.
func (s *session) run() {
	s.log.Info("sync session opened")
	go s.writeLoop()
	s.readLoop()
	close(s.done)
	s.conn.Close()
	s.log.Info("sync session closed")
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("read failed", "err", err)
			}
			return
		}
		frame, err := fieldsync.DecodeFrame(data)
		if err != nil {
			s.log.Warn("dropping malformed frame", "err", err)
			continue
		}
		switch f := frame.(type) {
		case *fieldsync.MutationFrame:
			s.handleMutation(f)
		case string:
			if f == fieldsync.FramePing {
				s.send(mustMarshalPong())
			}
		}
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case data := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.log.Warn("write failed", "err", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) send(data []byte) {
	select {
	case s.out <- data:
	case <-s.done:
	}
}

// handleMutation applies one mutation authoritatively and confirms the
// touched field plus every recomputed derived field, all tagged with the
// mutation's version so the client can pair confirmations to its
// optimistic sets.
func (s *session) handleMutation(m *fieldsync.MutationFrame) {
	rt, ok := s.units[m.Unit]
	if !ok {
		s.log.Warn("mutation for unknown unit",
			"err", errors.New("E150").WithUnit(m.Unit).WithField(m.Field))
		return
	}
	env := s.env(rt)

	touched, err := s.applyMutation(rt, env, m)
	if err != nil {
		s.log.Warn("mutation rejected", "unit", m.Unit, "field", m.Field, "op", m.Op, "err", err)
		return
	}

	recomputed := s.recompute(rt, env)

	for _, field := range append(touched, recomputed...) {
		data, err := fieldsync.EncodeConfirm(&fieldsync.ConfirmFrame{
			Unit:    m.Unit,
			Field:   field,
			Version: m.Version,
			Value:   env[field],
		})
		if err != nil {
			s.log.Error("encoding confirmation", "err", err)
			return
		}
		s.send(data)
	}
}

// applyMutation mutates env per the frame and returns the state fields
// it touched. An empty Op is a direct field set; otherwise Op names a
// declared action whose operations all run.
func (s *session) applyMutation(rt *unitRuntime, env expr.Env, m *fieldsync.MutationFrame) ([]string, error) {
	if m.Op == "" {
		if rt.unit.FieldByName(m.Field) == nil {
			return nil, errors.New("E151").WithUnit(m.Unit).WithField(m.Field).
				WithDetail("set of undeclared field")
		}
		env[m.Field] = m.Value
		return []string{m.Field}, nil
	}

	var action *decl.Action
	actions := rt.unit.Actions()
	for i := range actions {
		if actions[i].Name == m.Op {
			action = &actions[i]
			break
		}
	}
	if action == nil {
		return nil, errors.New("E151").WithUnit(m.Unit).
			WithDetail("unknown action " + m.Op)
	}

	var touched []string
	for _, op := range action.Ops {
		switch op.Kind {
		case decl.OpSet:
			env[op.Field] = m.Value
		case decl.OpDelta:
			n, _ := expr.ToNumber(env[op.Field])
			env[op.Field] = n + op.By
		case decl.OpUpdate:
			if op.Fn == nil {
				return nil, errors.New("E151").WithUnit(m.Unit).WithField(op.Field).
					WithDetail("update op without function")
			}
			env[op.Field] = op.Fn(env[op.Field])
		case decl.OpExpr:
			v, err := expr.Eval(op.Expr, env)
			if err != nil {
				return nil, err
			}
			env[op.Field] = v
		}
		touched = append(touched, op.Field)
	}
	return touched, nil
}

// recompute re-evaluates every derived field in topological order and
// returns the ones it updated.
func (s *session) recompute(rt *unitRuntime, env expr.Env) []string {
	var updated []string
	for _, name := range rt.graph.Order() {
		e := rt.graph.Entry(name)
		if e.Expr == nil {
			continue
		}
		v, err := expr.Eval(e.Expr, env)
		if err != nil {
			s.log.Warn("derived evaluation failed", "unit", rt.unit.Name, "field", name, "err", err)
			continue
		}
		env[name] = v
		updated = append(updated, name)
	}
	return updated
}

// env returns the session's state for one unit, seeding defaults and an
// initial derived pass on first touch.
func (s *session) env(rt *unitRuntime) expr.Env {
	if env, ok := s.state[rt.unit.Name]; ok {
		return env
	}
	env := make(expr.Env)
	for _, f := range rt.unit.Fields() {
		if f.Kind == decl.KindState {
			env[f.Name] = f.Default
		}
	}
	s.recompute(rt, env)
	s.state[rt.unit.Name] = env
	return env
}

func mustMarshalPong() []byte {
	data, _ := msgpack.Marshal(struct {
		Type string `msgpack:"t"`
	}{Type: fieldsync.FramePong})
	return data
}
