package cubez

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UniverseState is start()/stop()'s coarse lifecycle: CREATED (after
// Init) -> RUNNING (after Start) -> STOPPED (after Stop).
type UniverseState int

const (
	UniverseCreated UniverseState = iota
	UniverseRunning
	UniverseStopped
)

// Universe is the process-wide runtime instance owning the component
// registry, entity registry, and program table. The zero value is not
// usable; call Init first.
type Universe struct {
	mu    sync.RWMutex
	state UniverseState

	components *ComponentRegistry
	entities   *EntityRegistry

	programs     map[ProgramId]*Program
	programOrder []ProgramId
	programNames map[string]ProgramId
	nextProgID   ProgramId
	nextSysID    SystemId

	createEntityEvt  EventId
	destroyEntityEvt EventId
	internalProgram  ProgramId

	systems map[SystemId]*System

	log *zap.Logger
}

// Init prepares u for use, applying any UniverseOptions. It must be called
// exactly once before Start.
func (u *Universe) Init(opts ...UniverseOption) {
	u.log = zap.NewNop()
	for _, opt := range opts {
		opt(u)
	}
	u.components = NewComponentRegistry(u.log)
	u.entities = NewEntityRegistry()
	u.programs = make(map[ProgramId]*Program)
	u.programNames = make(map[string]ProgramId)
	u.systems = make(map[SystemId]*System)
	u.state = UniverseCreated

	// A default program named "" mirrors the original C API, where every
	// Attr's Program field defaults to the empty string
	// (qb_component_create: "if (!attr->program) attr->program = \"\";").
	_, _ = u.CreateProgram("")

	// An internal program hosts the CreateEntityEvent/DestroyEntityEvent
	// lifecycle events every entity create/destroy publishes, kept
	// separate from the user-visible default program.
	internal, _ := u.CreateProgram("__internal__")
	u.internalProgram = internal
	createEvt, _ := u.EventCreate(EventAttr{Program: "__internal__", MessageSize: 8})
	destroyEvt, _ := u.EventCreate(EventAttr{Program: "__internal__", MessageSize: 8})
	u.createEntityEvt = createEvt
	u.destroyEntityEvt = destroyEvt
}

// Start transitions the universe from CREATED to RUNNING.
func (u *Universe) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != UniverseCreated {
		return newStatusError(StatusNotRunning, "universe already started or stopped")
	}
	u.state = UniverseRunning
	u.log.Info("universe started")
	return nil
}

// running reports whether API calls are currently permitted.
func (u *Universe) running() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state == UniverseRunning
}

// Stop drains all programs, joins every detached worker, and transitions
// to STOPPED. If panics were recovered from detached workers, the first
// resulting error is returned and the others are discarded; the universe
// itself is never poisoned by them.
func (u *Universe) Stop() error {
	u.mu.Lock()
	if u.state != UniverseRunning {
		u.mu.Unlock()
		return newStatusError(StatusNotRunning, "universe not running")
	}
	u.state = UniverseStopped
	programs := make([]*Program, 0, len(u.programs))
	for _, p := range u.programs {
		programs = append(programs, p)
	}
	u.mu.Unlock()

	var g errgroup.Group
	for _, p := range programs {
		p := p
		g.Go(func() error {
			err := p.join()
			p.stopped()
			return err
		})
	}
	err := g.Wait()
	u.log.Info("universe stopped")
	return err
}

// Loop runs one tick of every attached program, in program-id order.
// Detached programs advance independently on their own worker.
func (u *Universe) Loop() error {
	if !u.running() {
		return ErrNotRunning
	}
	u.mu.RLock()
	order := make([]ProgramId, len(u.programOrder))
	copy(order, u.programOrder)
	u.mu.RUnlock()

	for _, id := range order {
		u.mu.RLock()
		p := u.programs[id]
		u.mu.RUnlock()
		if p == nil || p.State() != ProgramAttached {
			continue
		}
		p.tick(u.components, u.entities)
	}
	return nil
}

// RunProgram runs one tick of an attached program on the calling thread.
func (u *Universe) RunProgram(id ProgramId) error {
	if !u.running() {
		return ErrNotRunning
	}
	p, err := u.findProgram(id)
	if err != nil {
		return err
	}
	if p.State() == ProgramDetached {
		return ErrProgramDetached
	}
	p.tick(u.components, u.entities)
	return nil
}

// CreateProgram creates a logical scheduling unit. Names are unique within
// a universe.
func (u *Universe) CreateProgram(name string) (ProgramId, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.programNames[name]; exists {
		return 0, fmt.Errorf("cubez: program name %q already in use", name)
	}
	id := u.nextProgID
	u.nextProgID++
	p := newProgram(id, name, u.log, u)
	u.programs[id] = p
	u.programOrder = append(u.programOrder, id)
	u.programNames[name] = id
	return id, nil
}

// ProgramByName resolves a program's id from its unique name.
func (u *Universe) ProgramByName(name string) (ProgramId, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.programNames[name]
	return id, ok
}

func (u *Universe) findProgram(id ProgramId) (*Program, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	p, ok := u.programs[id]
	if !ok {
		return nil, newStatusError(StatusUnknownProgram, "id %d", id)
	}
	return p, nil
}

// DetachProgram spawns a dedicated worker goroutine that ticks program id
// in a loop until JoinProgram is called.
func (u *Universe) DetachProgram(id ProgramId) error {
	p, err := u.findProgram(id)
	if err != nil {
		return err
	}
	p.detach(u.components, u.entities)
	return nil
}

// JoinProgram signals a detached program's worker to stop and waits for its
// current tick to finish. A no-op for a program that is not
// currently detached.
func (u *Universe) JoinProgram(id ProgramId) error {
	p, err := u.findProgram(id)
	if err != nil {
		return err
	}
	return p.join()
}

// ComponentCreate registers a new component type, resolving attr.Program by
// name.
func (u *Universe) ComponentCreate(attr ComponentAttr) (ComponentId, error) {
	if attr.DataSize <= 0 {
		return 0, newStatusError(StatusAttrIncomplete, "data_size must be > 0")
	}
	if _, err := u.resolveProgram(attr.Program); err != nil {
		return 0, err
	}
	return u.components.Create(attr.DataSize), nil
}

// resolveProgram resolves an Attr's Program field to a ProgramId by name.
// An empty name resolves to the default program every Universe creates at
// Init, mirroring the original C API's `if (!attr->program) attr->program
// = "";`.
func (u *Universe) resolveProgram(name string) (ProgramId, error) {
	id, ok := u.ProgramByName(name)
	if !ok {
		return 0, newStatusError(StatusUnknownProgram, "name %q", name)
	}
	return id, nil
}

// EntityCreate is two-phase: it allocates an id, stages every
// requested component add, immediately flushes that staging (so the
// entity's components are visible to the caller synchronously), then
// publishes a CreateEntityEvent so subscribed systems observe the new
// entity at the next scheduler boundary.
func (u *Universe) EntityCreate(attr EntityAttr) (EntityId, error) {
	id := u.entities.allocate()

	staged := newStagingList()
	for _, ci := range attr.Components {
		if _, err := u.components.Storage(ci.Component); err != nil {
			return id, err
		}
		staged.Stage(id, ci.Component, MutateInsert, ci.Data)
	}
	staged.Flush(u.components, u.entities)

	u.publishInternal(u.createEntityEvt, createEntityEvent{Entity: id})
	return id, nil
}

// EntityDestroy is symmetric with EntityCreate: it publishes a
// DestroyEntityEvent, removes every component the entity carries, then
// frees the entity row. destroy requests serialize on the entity
// registry's destroy mutex so event emission and component removal happen
// atomically per entity.
func (u *Universe) EntityDestroy(id EntityId) error {
	u.entities.destroyMu.Lock()
	defer u.entities.destroyMu.Unlock()

	e, ok := u.entities.Find(id)
	if !ok {
		return newStatusError(StatusUnknownEntity, "id %d", id)
	}
	u.publishInternal(u.destroyEntityEvt, destroyEntityEvent{Entity: id})

	e.componentSet.Each(func(compId uint64) {
		_ = u.components.Remove(id, ComponentId(compId))
	})
	u.entities.free(id)
	return nil
}

func (u *Universe) publishInternal(evtId EventId, payload any) {
	u.mu.RLock()
	p := u.programs[u.internalProgram]
	u.mu.RUnlock()
	evt, err := p.findEvent(evtId)
	if err != nil {
		return
	}
	var idBytes [8]byte
	switch v := payload.(type) {
	case createEntityEvent:
		putUint64(idBytes[:], uint64(v.Entity))
	case destroyEntityEvent:
		putUint64(idBytes[:], uint64(v.Entity))
	}
	_ = evt.send(idBytes[:])
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// SystemCreate registers a system on a program. Sources/Sinks name
// components under the program's shared component registry; the component
// registry is universe-wide, so systems on different programs may still
// read the same components.
func (u *Universe) SystemCreate(attr SystemAttr) (SystemId, error) {
	if attr.Transform == nil && attr.Callback == nil {
		return 0, newStatusError(StatusAttrIncomplete, "transform or callback required")
	}
	progId, err := u.resolveProgram(attr.Program)
	if err != nil {
		return 0, err
	}
	p, err := u.findProgram(progId)
	if err != nil {
		return 0, err
	}
	u.mu.Lock()
	id := u.nextSysID
	u.nextSysID++
	u.mu.Unlock()

	sys := &System{
		Id:        id,
		Program:   progId,
		Sources:   attr.Sources,
		Sinks:     attr.Sinks,
		Transform: attr.Transform,
		Callback:  attr.Callback,
		Trigger:   attr.Trigger,
		Priority:  attr.Priority,
		Join:      attr.Join,
		UserState: attr.UserState,
		enabled:   true,
	}
	p.addSystem(sys)

	u.mu.Lock()
	u.systems[id] = sys
	u.mu.Unlock()
	return id, nil
}

// resolveSubscribers looks up ids in the universe-wide system table and
// returns the enabled, EVENT-triggered ones, ordered by priority descending
// then by SystemId (global registration order) as a deterministic
// tie-break, since ids may span multiple programs.
func (u *Universe) resolveSubscribers(ids []SystemId) []*System {
	u.mu.RLock()
	out := make([]*System, 0, len(ids))
	for _, id := range ids {
		if s, ok := u.systems[id]; ok && s.enabled && s.Trigger == TriggerEvent {
			out = append(out, s)
		}
	}
	u.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Id < out[j].Id
	})
	return out
}

// SystemEnable re-enables a previously disabled system; disabled systems
// are skipped but retain subscriptions and order.
func (u *Universe) SystemEnable(program ProgramId, system SystemId) error {
	p, err := u.findProgram(program)
	if err != nil {
		return err
	}
	return p.setEnabled(system, true)
}

// SystemDisable disables system.
func (u *Universe) SystemDisable(program ProgramId, system SystemId) error {
	p, err := u.findProgram(program)
	if err != nil {
		return err
	}
	return p.setEnabled(system, false)
}

// EventCreate creates an event on a program.
func (u *Universe) EventCreate(attr EventAttr) (EventId, error) {
	if attr.MessageSize <= 0 {
		return 0, newStatusError(StatusAttrIncomplete, "message_size must be > 0")
	}
	progId, err := u.resolveProgram(attr.Program)
	if err != nil {
		return 0, err
	}
	p, err := u.findProgram(progId)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	id := p.nextEvID
	p.nextEvID++
	p.mu.Unlock()
	p.createEvent(id, attr.MessageSize, attr.QueueCapacity)
	return id, nil
}

func (u *Universe) findEvent(program ProgramId, event EventId) (*Event, error) {
	p, err := u.findProgram(program)
	if err != nil {
		return nil, err
	}
	return p.findEvent(event)
}

// EventSend copies message into event's buffered queue for delivery during
// the next drain of the owning program's tick.
func (u *Universe) EventSend(program ProgramId, event EventId, message []byte) error {
	e, err := u.findEvent(program, event)
	if err != nil {
		return err
	}
	return e.send(message)
}

// EventSendSync invokes every subscribed system inline, in priority order,
// before returning. Reentrant sync sends on the same event fail
// with ErrReentrantSend. A subscriber that panics aborts the remaining
// subscribers and propagates the panic to the caller uncaught.
func (u *Universe) EventSendSync(program ProgramId, event EventId, message []byte) error {
	p, err := u.findProgram(program)
	if err != nil {
		return err
	}
	e, err := p.findEvent(event)
	if err != nil {
		return err
	}
	if len(message) != e.MessageSize {
		return newStatusError(StatusAttrIncomplete,
			"message size %d does not match event size %d", len(message), e.MessageSize)
	}
	if err := e.beginSync(); err != nil {
		return err
	}
	defer e.endSync()

	for _, sys := range p.eventSubscribers(e) {
		staged := sys.invoke(u.components, message, u.log)
		staged.Flush(u.components, u.entities)
	}
	return nil
}

// EventSubscribe subscribes system to event. Idempotent.
func (u *Universe) EventSubscribe(program ProgramId, event EventId, system SystemId) error {
	e, err := u.findEvent(program, event)
	if err != nil {
		return err
	}
	e.Subscribe(system)
	return nil
}

// EventUnsubscribe removes system from event's subscriber set. Idempotent.
func (u *Universe) EventUnsubscribe(program ProgramId, event EventId, system SystemId) error {
	e, err := u.findEvent(program, event)
	if err != nil {
		return err
	}
	e.Unsubscribe(system)
	return nil
}

// EventFlush discards every currently buffered, undelivered message on
// event without invoking subscribers.
func (u *Universe) EventFlush(program ProgramId, event EventId) error {
	e, err := u.findEvent(program, event)
	if err != nil {
		return err
	}
	e.queue.drain()
	return nil
}

// EventFlushAll discards every buffered message on every event owned by
// program.
func (u *Universe) EventFlushAll(program ProgramId) error {
	p, err := u.findProgram(program)
	if err != nil {
		return err
	}
	p.mu.RLock()
	events := make([]*Event, 0, len(p.events))
	for _, e := range p.events {
		events = append(events, e)
	}
	p.mu.RUnlock()
	for _, e := range events {
		e.queue.drain()
	}
	return nil
}

// EntityFind returns a snapshot of the live entity for id.
func (u *Universe) EntityFind(id EntityId) (Entity, bool) {
	return u.entities.Find(id)
}

// ComponentFind returns entity's bytes for component id, or false if the
// entity does not carry it.
func (u *Universe) ComponentFind(entity EntityId, component ComponentId) ([]byte, bool) {
	return u.components.Find(entity, component)
}

// CreateEntityEvent returns the (program, event) pair a system can
// subscribe to in order to observe every entity created in this universe.
func (u *Universe) CreateEntityEvent() (ProgramId, EventId) {
	return u.internalProgram, u.createEntityEvt
}

// DestroyEntityEvent returns the (program, event) pair a system can
// subscribe to in order to observe every entity destroyed in this
// universe. The message is enqueued before the entity's components are
// removed and its row is freed, and is delivered at the internal program's
// next drain, by which time the entity no longer exists.
func (u *Universe) DestroyEntityEvent() (ProgramId, EventId) {
	return u.internalProgram, u.destroyEntityEvt
}
