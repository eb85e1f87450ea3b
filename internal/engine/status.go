package engine

import (
	"errors"
	"log"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/cpu"
	"github.com/vrtuned-go/vrtuned/internal/network"
	"github.com/vrtuned-go/vrtuned/internal/storage"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// Status is the aggregate live view served by the status API and the
// websocket stream. State pointers are nil until the manager behind
// them has been initialized.
type Status struct {
	Time    time.Time     `json:"time"`
	Global  tune.Global   `json:"global"`
	CPU     CPUStatus     `json:"cpu"`
	Network NetworkStatus `json:"network"`
	Storage StorageStatus `json:"storage"`
}

type CPUStatus struct {
	Loop     tune.LoopState `json:"loop"`
	Settings cpu.Settings   `json:"settings"`
	Topology cpu.Topology   `json:"topology"`
	State    *cpu.State     `json:"state,omitempty"`
}

type NetworkStatus struct {
	Loop     tune.LoopState   `json:"loop"`
	Settings network.Settings `json:"settings"`
	Topology network.Topology `json:"topology"`
	State    *network.State   `json:"state,omitempty"`
}

type StorageStatus struct {
	Loop     tune.LoopState   `json:"loop"`
	Settings storage.Settings `json:"settings"`
	Topology storage.Topology `json:"topology"`
	State    *storage.State   `json:"state,omitempty"`
}

// Status samples all three domains. A degraded snapshot still carries
// its sentinel values and is served as-is; only an uninitialized
// manager yields a nil State. The status surface stays up while the
// hardware misbehaves.
func (e *Engine) Status() Status {
	st := Status{Time: time.Now(), Global: e.Global()}

	st.CPU.Loop = e.CPU.LoopState()
	st.CPU.Settings = e.CPU.Settings()
	st.CPU.Topology = e.CPU.Topology()
	cs, err := e.CPU.State()
	if err != nil {
		log.Printf("engine: cpu snapshot: %v", err)
	}
	if !errors.Is(err, tune.ErrNotInitialized) {
		st.CPU.State = &cs
	}

	st.Network.Loop = e.Network.LoopState()
	st.Network.Settings = e.Network.Settings()
	st.Network.Topology = e.Network.Topology()
	ns, err := e.Network.State()
	if err != nil {
		log.Printf("engine: network snapshot: %v", err)
	}
	if !errors.Is(err, tune.ErrNotInitialized) {
		st.Network.State = &ns
	}

	st.Storage.Loop = e.Storage.LoopState()
	st.Storage.Settings = e.Storage.Settings()
	st.Storage.Topology = e.Storage.Topology()
	ss, err := e.Storage.State()
	if err != nil {
		log.Printf("engine: storage snapshot: %v", err)
	}
	if !errors.Is(err, tune.ErrNotInitialized) {
		st.Storage.State = &ss
	}

	return st
}
