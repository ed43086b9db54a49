package cubez

import (
	"go.uber.org/zap"
)

// SystemId is a 64-bit id assigned in registration order.
type SystemId uint64

// Trigger selects when a system runs.
type Trigger int

const (
	// TriggerLoop invokes the system once per program tick.
	TriggerLoop Trigger = iota
	// TriggerEvent invokes the system once per drained message on a
	// subscribed event.
	TriggerEvent
)

// Priority bounds mirror the original engine's MAX_PRIORITY/MIN_PRIORITY
// (int16_t constants in cubez.h: MAX_PRIORITY = 0x7FFF, MIN_PRIORITY =
// 0x8001, kept symmetric around zero rather than spanning the full int16
// range).
const (
	MaxPriority int16 = 0x7FFF
	MinPriority int16 = -0x7FFF
)

// TransformFunc iterates the join stream: called once per tuple.
type TransformFunc func(frame *Frame)

// CallbackFunc is invoked once per trigger, after (or instead of) the
// per-tuple transform loop.
type CallbackFunc func(frame *Frame)

// SystemAttr describes a system to be created. Program is resolved to
// a ProgramId the way the original C API resolves qbSystemAttr's
// name-based program field.
type SystemAttr struct {
	Program   string
	Sources   []ComponentId
	Sinks     []ComponentId
	Transform TransformFunc
	Callback  CallbackFunc
	Trigger   Trigger
	Priority  int16
	Join      JoinMode
	UserState any
}

// System is `{ id, program, sources[], sinks[], transform_fn, callback_fn,
// trigger, priority, join, user_state }`.
type System struct {
	Id        SystemId
	Program   ProgramId
	Sources   []ComponentId
	Sinks     []ComponentId
	Transform TransformFunc
	Callback  CallbackFunc
	Trigger   Trigger
	Priority  int16
	Join      JoinMode
	UserState any

	enabled       bool
	registeredSeq uint64
}

// invoke runs one invocation of the system: if Transform is set and Sources
// is non-empty, it iterates the join stream calling Transform per tuple;
// then, if Callback is set, it is called once more. event carries
// the current message for EVENT-triggered invocations, nil otherwise.
//
// Mutations requested via Sinks during the invocation are staged and
// returned for the caller to flush once the whole invocation (including the
// callback) has returned, matching "staged mutations... applied before the
// next system runs" rather than mid-invocation.
//
// A panic inside Transform or Callback is logged, then re-raised: it is not
// this system's business to decide whether the rest of the tick continues,
// that call belongs to whoever is running the tick.
func (s *System) invoke(cr *ComponentRegistry, event []byte, log *zap.Logger) (staged *stagingList) {
	staged = newStagingList()
	sinks := make(map[ComponentId]struct{}, len(s.Sinks))
	for _, c := range s.Sinks {
		sinks[c] = struct{}{}
	}
	frame := &Frame{
		Event:     event,
		UserState: s.UserState,
		program:   s.Program,
		system:    s.Id,
		staging:   staged,
		sinks:     sinks,
		log:       log,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("system panic",
				zap.Uint64("system", uint64(s.Id)),
				zap.Uint64("program", uint64(s.Program)),
				zap.Any("recovered", r))
			panic(r)
		}
	}()

	if s.Transform != nil && len(s.Sources) > 0 {
		it, err := newJoin(cr, s.Sources, s.Join)
		if err != nil {
			log.Warn("join refused", zap.Uint64("system", uint64(s.Id)), zap.Error(err))
			return staged
		}
		for it.Next() {
			frame.Tuple = it.Tuple()
			s.Transform(frame)
		}
	}
	if s.Callback != nil {
		frame.Tuple = JoinTuple{}
		s.Callback(frame)
	}
	return staged
}
