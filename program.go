package cubez

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ProgramId is a 64-bit id assigned in creation order.
type ProgramId uint64

// ProgramState is the program lifecycle state machine:
// CREATED -> ATTACHED <-> DETACHED -> STOPPED. newProgram starts a program
// directly in ATTACHED, so ProgramCreated is never observed.
type ProgramState int

const (
	ProgramCreated ProgramState = iota
	ProgramAttached
	ProgramDetached
	ProgramStopped
)

// ErrProgramDetached is returned by RunProgram against a program currently
// running on its own detached worker thread.
var ErrProgramDetached = errors.New("cubez: program is detached")

// Program is `{ id, name, systems, events, attached, thread? }`: a
// scheduling unit owning an ordered system list and its events, advanced
// one tick at a time either under the universe's ticker or on its own
// worker goroutine.
type Program struct {
	Id   ProgramId
	Name string

	mu       sync.RWMutex
	systems  []*System
	nextSeq  uint64
	events   map[EventId]*Event
	eventSeq []EventId
	nextEvID EventId

	state ProgramState

	stopCh  chan struct{}
	doneCh  chan struct{}
	tickErr error
	log     *zap.Logger

	// uni resolves an event's subscriber ids to *System regardless of which
	// program registered them: subscribe_to in the original API takes an
	// arbitrary pipeline, so a system on one program may subscribe to an
	// event owned by another.
	uni *Universe
}

func newProgram(id ProgramId, name string, log *zap.Logger, uni *Universe) *Program {
	return &Program{
		Id:     id,
		Name:   name,
		events: make(map[EventId]*Event),
		state:  ProgramAttached,
		log:    log,
		uni:    uni,
	}
}

// State returns the program's current lifecycle state.
func (p *Program) State() ProgramState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// addSystem inserts sys into the ordered system list: descending priority,
// ties broken by registration order.
func (p *Program) addSystem(sys *System) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sys.registeredSeq = p.nextSeq
	p.nextSeq++
	p.systems = append(p.systems, sys)
	sort.SliceStable(p.systems, func(i, j int) bool {
		if p.systems[i].Priority != p.systems[j].Priority {
			return p.systems[i].Priority > p.systems[j].Priority
		}
		return p.systems[i].registeredSeq < p.systems[j].registeredSeq
	})
}

func (p *Program) findSystem(id SystemId) (*System, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.systems {
		if s.Id == id {
			return s, true
		}
	}
	return nil, false
}

func (p *Program) setEnabled(id SystemId, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.systems {
		if s.Id == id {
			s.enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("cubez: system %d not in program %d", id, p.Id)
}

func (p *Program) createEvent(id EventId, messageSize, capacity int) *Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	e := newEvent(id, p.Id, messageSize, capacity)
	p.events[id] = e
	p.eventSeq = append(p.eventSeq, id)
	return e
}

func (p *Program) findEvent(id EventId) (*Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.events[id]
	if !ok {
		return nil, newStatusError(StatusUnknownEvent, "id %d", id)
	}
	return e, nil
}

// loopSystems returns a priority-ordered snapshot of the program's
// LOOP-triggered, enabled systems.
func (p *Program) loopSystems() []*System {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*System, 0, len(p.systems))
	for _, s := range p.systems {
		if s.enabled && s.Trigger == TriggerLoop {
			out = append(out, s)
		}
	}
	return out
}

// eventSubscribers returns the priority-ordered, enabled EVENT-triggered
// subscribers of event. A subscriber may belong to any program, so
// resolution goes through the universe's system table rather than p's own.
func (p *Program) eventSubscribers(event *Event) []*System {
	return p.uni.resolveSubscribers(event.Subscribers())
}

// tick runs one pass: every LOOP system in priority order, then drains
// every event's queue, invoking subscribed EVENT systems once per message
// in priority order. Staged mutations from one invocation are
// flushed before the next invocation begins. A panicking system aborts the
// rest of the tick; the panic propagates to tick's caller uncaught, so an
// attached program's panic surfaces from Loop/RunProgram and a detached
// program's panic is caught by its own worker goroutine in detach.
func (p *Program) tick(cr *ComponentRegistry, er *EntityRegistry) {
	for _, sys := range p.loopSystems() {
		staged := sys.invoke(cr, nil, p.log)
		staged.Flush(cr, er)
	}

	p.mu.RLock()
	events := make([]*Event, 0, len(p.eventSeq))
	for _, id := range p.eventSeq {
		events = append(events, p.events[id])
	}
	p.mu.RUnlock()

	for _, ev := range events {
		messages := ev.queue.drain()
		for _, msg := range messages {
			for _, sys := range p.eventSubscribers(ev) {
				staged := sys.invoke(cr, msg, p.log)
				staged.Flush(cr, er)
			}
		}
	}
}

// detach spawns a dedicated worker goroutine that calls tick in a loop
// until Join signals it to stop.
func (p *Program) detach(cr *ComponentRegistry, er *EntityRegistry) {
	p.mu.Lock()
	if p.state == ProgramDetached {
		p.mu.Unlock()
		return
	}
	p.state = ProgramDetached
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.mu.Unlock()

	p.log.Info("program detached", zap.Uint64("program", uint64(p.Id)), zap.String("name", p.Name))

	go func() {
		defer close(doneCh)
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						p.mu.Lock()
						p.tickErr = fmt.Errorf("cubez: detached program %d panicked: %v", p.Id, r)
						p.mu.Unlock()
						p.log.Error("detached program tick panicked, terminating program",
							zap.Uint64("program", uint64(p.Id)), zap.Any("recovered", r))
					}
				}()
				p.tick(cr, er)
			}()
			if p.tickFailed() {
				return
			}
			runtime.Gosched()
		}
	}()
}

func (p *Program) tickFailed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tickErr != nil
}

// join signals the detached worker to stop and waits for its current tick
// to finish, returning the program to ATTACHED. A no-op if the program is not currently detached.
func (p *Program) join() error {
	p.mu.Lock()
	if p.state != ProgramDetached {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = ProgramAttached
	err := p.tickErr
	p.tickErr = nil
	p.log.Info("program joined", zap.Uint64("program", uint64(p.Id)), zap.String("name", p.Name))
	return err
}

func (p *Program) stopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = ProgramStopped
}
