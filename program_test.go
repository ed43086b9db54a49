package cubez

import (
	"testing"

	"go.uber.org/zap"
)

// go test -run ^TestProgramAddSystemPriorityOrder$ . -count 1
func TestProgramAddSystemPriorityOrder(t *testing.T) {
	p := newProgram(1, "p", zap.NewNop(), nil)
	low := &System{Id: 1, Priority: -5, Trigger: TriggerLoop, enabled: true}
	high := &System{Id: 2, Priority: 10, Trigger: TriggerLoop, enabled: true}
	mid := &System{Id: 3, Priority: 0, Trigger: TriggerLoop, enabled: true}

	p.addSystem(low)
	p.addSystem(high)
	p.addSystem(mid)

	order := p.loopSystems()
	if len(order) != 3 {
		t.Fatalf("expected 3 systems, got %d", len(order))
	}
	if order[0].Id != high.Id || order[1].Id != mid.Id || order[2].Id != low.Id {
		t.Errorf("expected descending priority order [high, mid, low], got %v", []SystemId{order[0].Id, order[1].Id, order[2].Id})
	}
}

// go test -run ^TestProgramAddSystemTiesBrokenByRegistrationOrder$ . -count 1
func TestProgramAddSystemTiesBrokenByRegistrationOrder(t *testing.T) {
	p := newProgram(1, "p", zap.NewNop(), nil)
	first := &System{Id: 1, Priority: 5, Trigger: TriggerLoop, enabled: true}
	second := &System{Id: 2, Priority: 5, Trigger: TriggerLoop, enabled: true}

	p.addSystem(first)
	p.addSystem(second)

	order := p.loopSystems()
	if order[0].Id != first.Id || order[1].Id != second.Id {
		t.Errorf("expected registration order to break the tie, got %v", []SystemId{order[0].Id, order[1].Id})
	}
}

// go test -run ^TestProgramSetEnabledExcludesFromLoop$ . -count 1
func TestProgramSetEnabledExcludesFromLoop(t *testing.T) {
	p := newProgram(1, "p", zap.NewNop(), nil)
	sys := &System{Id: 1, Trigger: TriggerLoop, enabled: true}
	p.addSystem(sys)

	if err := p.setEnabled(sys.Id, false); err != nil {
		t.Fatal(err)
	}
	if len(p.loopSystems()) != 0 {
		t.Error("expected disabled system to be excluded from loopSystems")
	}

	if err := p.setEnabled(sys.Id, true); err != nil {
		t.Fatal(err)
	}
	if len(p.loopSystems()) != 1 {
		t.Error("expected re-enabled system back in loopSystems")
	}
}

// go test -run ^TestProgramSetEnabledUnknownSystem$ . -count 1
func TestProgramSetEnabledUnknownSystem(t *testing.T) {
	p := newProgram(1, "p", zap.NewNop(), nil)
	if err := p.setEnabled(SystemId(999), true); err == nil {
		t.Error("expected an error enabling a system not registered on this program")
	}
}
