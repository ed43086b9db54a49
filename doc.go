// Package cubez implements an in-process Entity-Component-System runtime:
// typed component storage with stable entity identity, a system scheduler
// that joins components into instance streams under a declared read/write
// discipline, and an event/program runtime that advances independent
// scheduling units with synchronous and buffered delivery.
//
// # Quick start
//
//	var u cubez.Universe
//	u.Init(cubez.WithLogger(zap.NewExample()))
//	u.Start()
//
//	_, _ = u.CreateProgram("physics")
//	pos, _ := u.ComponentCreate(cubez.ComponentAttr{Program: "physics", DataSize: 12})
//
//	e, _ := u.EntityCreate(cubez.EntityAttr{
//		Components: []cubez.ComponentInstance{{Component: pos, Data: posBytes}},
//	})
//
//	u.SystemCreate(cubez.SystemAttr{
//		Program:   "physics",
//		Sources:   []cubez.ComponentId{pos},
//		Sinks:     []cubez.ComponentId{pos},
//		Trigger:   cubez.TriggerLoop,
//		Transform: moveSystem,
//	})
//
//	for i := 0; i < 10; i++ {
//		u.Loop()
//	}
//	u.Stop()
package cubez
