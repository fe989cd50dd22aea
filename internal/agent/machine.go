package agent

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"
)

// Check lifecycle states. One machine instance covers one check from
// start to finish; Current() is surfaced on the status endpoint.
const (
	StateIdle             = "idle"
	StateFetching         = "fetching"
	StateParsed           = "parsed"
	StateDeciding         = "deciding"
	StateNoUpdateReported = "no-update-reported"
	StateUpdateOffered    = "update-offered"
	StateDownloading      = "downloading"
	StateTrustGating      = "trust-gating"
	StateReady            = "ready"
	StateRejected         = "rejected"
)

const (
	eventStartCheck     = "start-check"
	eventFeedFetched    = "feed-fetched"
	eventDecide         = "decide"
	eventReportNoUpdate = "report-no-update"
	eventOfferUpdate    = "offer-update"
	eventAccept         = "accept"
	eventDownloadDone   = "download-done"
	eventDiscard        = "discard"
	eventTrustPass      = "trust-pass"
	eventTrustFail      = "trust-fail"
	eventFail           = "fail"
	eventFinish         = "finish"
)

// newMachine builds the check lifecycle machine. The orchestrator fires
// the events; the machine exists to refuse out-of-order transitions and
// to give logs and the status endpoint a single source of truth.
func newMachine(log logr.Logger) *fsm.FSM {
	events := fsm.Events{
		{Name: eventStartCheck, Src: []string{StateIdle}, Dst: StateFetching},
		{Name: eventFeedFetched, Src: []string{StateFetching}, Dst: StateParsed},
		{Name: eventDecide, Src: []string{StateParsed}, Dst: StateDeciding},
		{Name: eventReportNoUpdate, Src: []string{StateDeciding}, Dst: StateNoUpdateReported},
		{Name: eventOfferUpdate, Src: []string{StateDeciding}, Dst: StateUpdateOffered},
		{Name: eventAccept, Src: []string{StateUpdateOffered}, Dst: StateDownloading},
		{Name: eventDownloadDone, Src: []string{StateDownloading}, Dst: StateTrustGating},
		// The host can cancel between download and verification; the
		// artifact is discarded without ever reaching the gate.
		{Name: eventDiscard, Src: []string{StateDownloading}, Dst: StateIdle},
		{Name: eventTrustPass, Src: []string{StateTrustGating}, Dst: StateReady},
		{Name: eventTrustFail, Src: []string{StateTrustGating}, Dst: StateRejected},

		// One failure boundary covers fetch, parse and decide. Download
		// and trust failures route through it as well so every error
		// path lands back in idle.
		{Name: eventFail, Src: []string{StateFetching, StateParsed, StateDeciding, StateDownloading, StateTrustGating}, Dst: StateIdle},

		{Name: eventFinish, Src: []string{StateNoUpdateReported, StateUpdateOffered, StateReady, StateRejected}, Dst: StateIdle},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			log.V(1).Info("check state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
		},
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}
