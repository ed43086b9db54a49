// Command cubezdemo is a small end-to-end host exercising cubez's public
// API: two components on a floating-point physics record, a LOOP system
// that integrates position from velocity, an EVENT system that observes
// entity creation, and a detached program that reports on its own worker
// while the main loop keeps ticking.
package main

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rohde-cubez/cubez"
)

const (
	positionSize = 8 // two float32
	velocitySize = 8
)

func encodeVec(x, y float32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(x))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(y))
	return b
}

func decodeVec(b []byte) (x, y float32) {
	x = math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	y = math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
	return
}

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	runID := uuid.New()
	log = log.With(zap.String("run", runID.String()))

	var u cubez.Universe
	u.Init(cubez.WithLogger(log))
	if err := u.Start(); err != nil {
		log.Fatal("start failed", zap.Error(err))
	}
	defer u.Stop()

	if _, err := u.CreateProgram("physics"); err != nil {
		log.Fatal("create program failed", zap.Error(err))
	}
	if _, err := u.CreateProgram("telemetry"); err != nil {
		log.Fatal("create program failed", zap.Error(err))
	}

	pos, err := u.ComponentCreate(cubez.ComponentAttr{Program: "physics", DataSize: positionSize})
	if err != nil {
		log.Fatal("create position component failed", zap.Error(err))
	}
	vel, err := u.ComponentCreate(cubez.ComponentAttr{Program: "physics", DataSize: velocitySize})
	if err != nil {
		log.Fatal("create velocity component failed", zap.Error(err))
	}

	moveSystem := func(frame *cubez.Frame) {
		px, py := decodeVec(frame.Tuple.Instances[0].Data)
		vx, vy := decodeVec(frame.Tuple.Instances[1].Data)
		frame.Stage(frame.Tuple.Entity, pos, encodeVec(px+vx, py+vy))
	}
	if _, err := u.SystemCreate(cubez.SystemAttr{
		Program:   "physics",
		Sources:   []cubez.ComponentId{pos, vel},
		Sinks:     []cubez.ComponentId{pos},
		Trigger:   cubez.TriggerLoop,
		Join:      cubez.JoinInner,
		Priority:  100,
		Transform: moveSystem,
	}); err != nil {
		log.Fatal("create move system failed", zap.Error(err))
	}

	spawnProg, evtProg := u.CreateEntityEvent()
	spawnLogger := func(frame *cubez.Frame) {
		log.Info("entity created", zap.ByteString("payload", frame.Event))
	}
	spawnSysID, err := u.SystemCreate(cubez.SystemAttr{
		Program:  "telemetry",
		Trigger:  cubez.TriggerEvent,
		Callback: spawnLogger,
	})
	if err != nil {
		log.Fatal("create spawn logger failed", zap.Error(err))
	}
	if err := u.EventSubscribe(spawnProg, evtProg, spawnSysID); err != nil {
		log.Fatal("subscribe spawn logger failed", zap.Error(err))
	}

	tickCounter := new(int)
	heartbeat := func(frame *cubez.Frame) {
		*tickCounter++
		log.Info("telemetry heartbeat", zap.Int("tick", *tickCounter))
	}
	if _, err := u.SystemCreate(cubez.SystemAttr{
		Program:  "telemetry",
		Trigger:  cubez.TriggerLoop,
		Callback: heartbeat,
	}); err != nil {
		log.Fatal("create heartbeat system failed", zap.Error(err))
	}

	for i := 0; i < 5; i++ {
		if _, err := u.EntityCreate(cubez.EntityAttr{
			Components: []cubez.ComponentInstance{
				{Component: pos, Data: encodeVec(0, 0)},
				{Component: vel, Data: encodeVec(float32(i), 1)},
			},
		}); err != nil {
			log.Error("create entity failed", zap.Error(err))
		}
	}

	telemetryProgID, _ := u.ProgramByName("telemetry")
	if err := u.DetachProgram(telemetryProgID); err != nil {
		log.Fatal("detach telemetry failed", zap.Error(err))
	}

	for i := 0; i < 10; i++ {
		if err := u.Loop(); err != nil {
			log.Fatal("loop failed", zap.Error(err))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := u.JoinProgram(telemetryProgID); err != nil {
		log.Error("telemetry program stopped with error", zap.Error(err))
	}

	log.Info("run complete")
}
