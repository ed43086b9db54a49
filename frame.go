package cubez

import "go.uber.org/zap"

// Frame is passed to every transform/callback invocation. It carries
// the current join tuple (empty during a Callback invocation), the
// current event message (for EVENT-triggered invocations), the system's
// opaque user state, and the staging handle sinks route mutations through.
//
// Frame.Arg/SetArg reinstate the original engine's qbArg scratch space:
// named byte buffers that live for exactly one invocation and are never
// staged or persisted, for a transform to pass working values to itself
// across the per-tuple calls of one invocation without touching component
// storage.
type Frame struct {
	Tuple     JoinTuple
	Event     []byte
	UserState any

	program ProgramId
	system  SystemId
	staging *stagingList
	sinks   map[ComponentId]struct{}
	log     *zap.Logger
	args    map[string][]byte
}

// Arg returns the named scratch buffer, if set earlier this invocation.
func (f *Frame) Arg(name string) ([]byte, bool) {
	if f.args == nil {
		return nil, false
	}
	b, ok := f.args[name]
	return b, ok
}

// SetArg stores a named scratch buffer for the remainder of this invocation.
func (f *Frame) SetArg(name string, data []byte) {
	if f.args == nil {
		f.args = make(map[string][]byte)
	}
	f.args[name] = data
}

// Stage requests that component c on entity be overwritten with data once
// the current system invocation returns. c must be one of the
// system's declared Sinks; a write outside
// the declared set is dropped and logged, not silently accepted.
func (f *Frame) Stage(entity EntityId, c ComponentId, data []byte) {
	if !f.sinkAllowed(c) {
		return
	}
	f.staging.Stage(entity, c, MutateInsertOrUpdate, data)
}

// StageRemove requests that component c be removed from entity once the
// current system invocation returns. Removes always win over a same-frame
// Stage for the same (entity, component). Subject to the same sink
// discipline as Stage.
func (f *Frame) StageRemove(entity EntityId, c ComponentId) {
	if !f.sinkAllowed(c) {
		return
	}
	f.staging.Stage(entity, c, MutateRemove, nil)
}

func (f *Frame) sinkAllowed(c ComponentId) bool {
	if _, ok := f.sinks[c]; ok {
		return true
	}
	if f.log != nil {
		f.log.Warn("write outside declared sinks dropped",
			zap.Uint64("system", uint64(f.system)),
			zap.Uint64("component", uint64(c)))
	}
	return false
}
