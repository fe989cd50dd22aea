package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upcast-io/upcast/internal/feed"
	"github.com/upcast-io/upcast/internal/identity"
	"github.com/upcast-io/upcast/internal/state"
	"github.com/upcast-io/upcast/internal/trust"
)

// recordingNotifier captures lifecycle events in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recordingNotifier) FeedAvailable(f *feed.Feed) { r.add("feed-available:" + f.Version) }
func (r *recordingNotifier) NoUpdate(current string)    { r.add("no-update:" + current) }
func (r *recordingNotifier) UpdateOffered(f *feed.Feed) { r.add("update-offered:" + f.Version) }
func (r *recordingNotifier) ArtifactDownloaded(f *feed.Feed, _ string) {
	r.add("artifact-downloaded:" + f.Version)
}
func (r *recordingNotifier) UpdateReady(f *feed.Feed, _ string)   { r.add("update-ready:" + f.Version) }
func (r *recordingNotifier) UpdateRejected(f *feed.Feed, _ error) { r.add("update-rejected:" + f.Version) }
func (r *recordingNotifier) CheckFailed(error)                    { r.add("check-failed") }

type rigOptions struct {
	currentVersion string
	feedVersion    string
	checkInterval  string
	sign           bool
	tamper         bool
	feedBody       string // raw feed payload override
	feedStatus     int    // non-zero forces an HTTP status for the feed
	feedDelay      time.Duration
	confirmer      Confirmer
}

type rig struct {
	agent       *Agent
	notifier    *recordingNotifier
	store       *state.Store
	server      *httptest.Server
	downloadDir string
	feedHits    *atomic.Int64
}

func newRig(t *testing.T, o rigOptions) *rig {
	t.Helper()

	if o.currentVersion == "" {
		o.currentVersion = "1.0.0"
	}

	dir := t.TempDir()
	priv := filepath.Join(dir, "signing.key")
	pub := filepath.Join(dir, "signing.pub")
	if err := trust.GenerateKeyPair(priv, pub); err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	artifact := []byte("binary payload " + o.feedVersion)
	artifactPath := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(artifactPath, artifact, 0644); err != nil {
		t.Fatal(err)
	}

	signature := ""
	if o.sign {
		s, err := trust.Sign(artifactPath, priv)
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		signature = s
	}
	if o.tamper {
		// Sign different bytes so the gate must refuse the artifact.
		other := filepath.Join(dir, "other.bin")
		if err := os.WriteFile(other, []byte("something else entirely"), 0644); err != nil {
			t.Fatal(err)
		}
		s, err := trust.Sign(other, priv)
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		signature = s
	}

	hits := &atomic.Int64{}
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	feedBody := o.feedBody
	if feedBody == "" {
		doc := map[string]any{
			"version":     o.feedVersion,
			"artifactUrl": server.URL + "/artifact/demo.bin",
		}
		if signature != "" {
			doc["signature"] = signature
		}
		b, err := json.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		feedBody = string(b)
	}

	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if o.feedDelay > 0 {
			time.Sleep(o.feedDelay)
		}
		if o.feedStatus != 0 {
			w.WriteHeader(o.feedStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(feedBody))
	})
	mux.HandleFunc("/artifact/demo.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})

	id := &identity.Identity{
		Name:          "demo-app",
		Version:       o.currentVersion,
		FeedURL:       server.URL + "/feed.json",
		PublicKeyPath: pub,
		CheckInterval: o.checkInterval,
	}

	notifier := &recordingNotifier{}
	store := state.NewStoreAt(filepath.Join(dir, "state.json"))
	downloadDir := t.TempDir()

	ag, err := New(Config{
		Identity:    id,
		Store:       store,
		Notifier:    notifier,
		Confirmer:   o.confirmer,
		DownloadDir: downloadDir,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &rig{
		agent:       ag,
		notifier:    notifier,
		store:       store,
		server:      server,
		downloadDir: downloadDir,
		feedHits:    hits,
	}
}

func TestNewRequiresIdentity(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() should reject a missing identity")
	}
}

func TestCheckNoUpdateOnEqualVersion(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "1.0.0", sign: true})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.Outcome != feed.NoUpdate {
		t.Errorf("Outcome = %v, want %v", res.Outcome, feed.NoUpdate)
	}
	if res.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %q, want empty", res.ArtifactPath)
	}

	// Observers hear about the feed even when nothing comes of it, but
	// a routine check stays quiet about the no-update outcome.
	want := []string{"feed-available:1.0.0"}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	if got := r.agent.State(); got != StateIdle {
		t.Errorf("State() = %v, want %v", got, StateIdle)
	}
}

func TestCheckVerifiedUpdateFlow(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", sign: true})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.Outcome != feed.UpdateAvailable {
		t.Errorf("Outcome = %v, want %v", res.Outcome, feed.UpdateAvailable)
	}
	if res.Verdict != trust.Verified {
		t.Errorf("Verdict = %v, want %v", res.Verdict, trust.Verified)
	}
	if res.ArtifactPath == "" {
		t.Fatal("ArtifactPath should be set after a verified download")
	}
	if _, err := os.Stat(res.ArtifactPath); err != nil {
		t.Errorf("verified artifact should exist: %v", err)
	}

	want := []string{
		"feed-available:2.0.0",
		"update-offered:2.0.0",
		"artifact-downloaded:2.0.0",
		"update-ready:2.0.0",
	}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	st, _ := r.store.Load()
	if st.LastOutcome != "ready" {
		t.Errorf("LastOutcome = %v, want ready", st.LastOutcome)
	}
	if st.LastOffered != "2.0.0" {
		t.Errorf("LastOffered = %v, want 2.0.0", st.LastOffered)
	}

	if got := r.agent.State(); got != StateIdle {
		t.Errorf("State() = %v, want %v", got, StateIdle)
	}
}

func TestCheckTamperedArtifactRejected(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", tamper: true})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err == nil {
		t.Fatal("Check() should surface the verification failure")
	}

	var verr *trust.VerificationError
	if !errors.As(err, &verr) {
		t.Errorf("error = %v, want *trust.VerificationError", err)
	}
	if res == nil || res.Verdict != trust.VerificationFailed {
		t.Errorf("Verdict = %+v, want %v", res, trust.VerificationFailed)
	}

	// The rejected artifact must be gone.
	entries, err := os.ReadDir(r.downloadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("download dir should be empty after rejection, has %d entries", len(entries))
	}

	events := r.notifier.list()
	if len(events) == 0 || events[len(events)-1] != "update-rejected:2.0.0" {
		t.Errorf("events = %v, want update-rejected:2.0.0 last", events)
	}

	st, _ := r.store.Load()
	if st.LastOutcome != "rejected" {
		t.Errorf("LastOutcome = %v, want rejected", st.LastOutcome)
	}
}

func TestCheckUnsignedPassesWithWarning(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", sign: false})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.Verdict != trust.NoSignaturePresent {
		t.Errorf("Verdict = %v, want %v", res.Verdict, trust.NoSignaturePresent)
	}
	if res.ArtifactPath == "" {
		t.Fatal("unsigned artifact still passes through")
	}
	if _, err := os.Stat(res.ArtifactPath); err != nil {
		t.Errorf("artifact should exist: %v", err)
	}

	events := r.notifier.list()
	if len(events) == 0 || events[len(events)-1] != "update-ready:2.0.0" {
		t.Errorf("events = %v, want update-ready:2.0.0 last", events)
	}
}

func TestCheckMalformedFeedStaysSilent(t *testing.T) {
	r := newRig(t, rigOptions{feedBody: "this is not a feed"})

	_, err := r.agent.Check(context.Background(), CheckOptions{})
	if err == nil {
		t.Fatal("Check() should report the parse failure to its caller")
	}

	var perr *feed.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("error = %v, want *feed.ParseError", err)
	}

	// A routine check absorbs the failure without any notification.
	if got := r.notifier.list(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}

	if got := r.agent.State(); got != StateIdle {
		t.Errorf("State() = %v, want %v", got, StateIdle)
	}
}

func TestCheckUnparsableFeedVersionIsNoUpdate(t *testing.T) {
	r := newRig(t, rigOptions{
		feedBody: `{"version": "not-a-version", "artifactUrl": "https://example.com/a.bin"}`,
	})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v, unparsable feed version must not fail the check", err)
	}

	if res.Outcome != feed.NoUpdate {
		t.Errorf("Outcome = %v, want %v", res.Outcome, feed.NoUpdate)
	}

	want := []string{"feed-available:not-a-version"}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestForcedCheckOffersEqualVersion(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "2.0.0", feedVersion: "2.0.0", sign: true})

	res, err := r.agent.Check(context.Background(), CheckOptions{Force: true})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.Outcome != feed.Forced {
		t.Errorf("Outcome = %v, want %v", res.Outcome, feed.Forced)
	}
	if res.Verdict != trust.Verified {
		t.Errorf("Verdict = %v, want %v", res.Verdict, trust.Verified)
	}
}

func TestForcedCheckRefusesDowngradeButReportsBack(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "3.0.0", feedVersion: "2.0.0", sign: true})

	res, err := r.agent.Check(context.Background(), CheckOptions{Force: true})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.Outcome != feed.NoUpdate {
		t.Errorf("Outcome = %v, want %v", res.Outcome, feed.NoUpdate)
	}

	// A forced check always reports, even when there is nothing.
	want := []string{"feed-available:2.0.0", "no-update:3.0.0"}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestForcedCheckReportsFetchFailure(t *testing.T) {
	r := newRig(t, rigOptions{feedStatus: http.StatusNotFound})

	_, err := r.agent.Check(context.Background(), CheckOptions{Force: true})
	if err == nil {
		t.Fatal("Check() should fail on HTTP 404")
	}

	want := []string{"check-failed"}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSkipSuppressesRoutineOffersOnly(t *testing.T) {
	skipOnce := ConfirmerFunc(func(context.Context, *feed.Feed) (Response, error) {
		return Skip, nil
	})
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", sign: true, confirmer: skipOnce})

	// First check: offered, user skips.
	if _, err := r.agent.Check(context.Background(), CheckOptions{}); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	st, _ := r.store.Load()
	if st.SkippedVersion != "2.0.0" {
		t.Fatalf("SkippedVersion = %v, want 2.0.0", st.SkippedVersion)
	}

	// Second routine check: the skipped release is not offered again.
	r.notifier.reset()
	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Outcome != feed.NoUpdate {
		t.Errorf("Outcome = %v, want %v", res.Outcome, feed.NoUpdate)
	}
	for _, ev := range r.notifier.list() {
		if ev == "update-offered:2.0.0" {
			t.Error("skipped release must not be offered on a routine check")
		}
	}

	// A forced check ignores the skip record.
	r.notifier.reset()
	res, err = r.agent.Check(context.Background(), CheckOptions{Force: true})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Outcome != feed.Forced {
		t.Errorf("forced Outcome = %v, want %v", res.Outcome, feed.Forced)
	}
	found := false
	for _, ev := range r.notifier.list() {
		if ev == "update-offered:2.0.0" {
			found = true
		}
	}
	if !found {
		t.Error("forced check should offer the skipped release")
	}
}

func TestDeclineStopsBeforeDownload(t *testing.T) {
	decline := ConfirmerFunc(func(context.Context, *feed.Feed) (Response, error) {
		return Decline, nil
	})
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", sign: true, confirmer: decline})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %q, want empty after decline", res.ArtifactPath)
	}
	entries, _ := os.ReadDir(r.downloadDir)
	if len(entries) != 0 {
		t.Errorf("nothing should be downloaded after decline, found %d entries", len(entries))
	}

	want := []string{"feed-available:2.0.0", "update-offered:2.0.0"}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	st, _ := r.store.Load()
	if st.SkippedVersion != "" {
		t.Errorf("decline must not record a skip, got %v", st.SkippedVersion)
	}
}

// stagingCanceller accepts the offer but refuses the post-download
// confirmation.
type stagingCanceller struct{}

func (stagingCanceller) Confirm(context.Context, *feed.Feed) (Response, error) {
	return Accept, nil
}

func (stagingCanceller) Continue(context.Context, *feed.Feed, string) (bool, error) {
	return false, nil
}

func TestCancelAfterDownloadDiscardsUnverified(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", sign: true, confirmer: stagingCanceller{}})

	res, err := r.agent.Check(context.Background(), CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %q, want empty after cancel", res.ArtifactPath)
	}
	if res.Verdict != "" {
		t.Errorf("Verdict = %q, the gate must not have run", res.Verdict)
	}

	// The download happened and was then discarded.
	want := []string{"feed-available:2.0.0", "update-offered:2.0.0", "artifact-downloaded:2.0.0"}
	if got := r.notifier.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	entries, err := os.ReadDir(r.downloadDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("download dir should be empty after cancel, has %d entries", len(entries))
	}

	if got := r.agent.State(); got != StateIdle {
		t.Errorf("State() = %v, want %v", got, StateIdle)
	}
}

func TestConcurrentChecksCoalesce(t *testing.T) {
	r := newRig(t, rigOptions{
		currentVersion: "1.0.0",
		feedVersion:    "1.0.0",
		sign:           true,
		feedDelay:      150 * time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.agent.Check(context.Background(), CheckOptions{}); err != nil {
				t.Errorf("Check() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := r.feedHits.Load(); got != 1 {
		t.Errorf("feed fetched %d times, want 1", got)
	}
}

func TestCheckInBackground(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "1.0.0", sign: true})

	r.agent.CheckInBackground(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, _ := r.store.Load()
		if st.LastOutcome != "" {
			if st.LastOutcome != "no-update" {
				t.Errorf("LastOutcome = %v, want no-update", st.LastOutcome)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background check never recorded an outcome")
}

func TestRunRespondsToTriggers(t *testing.T) {
	r := newRig(t, rigOptions{
		currentVersion: "1.0.0",
		feedVersion:    "1.0.0",
		sign:           true,
		checkInterval:  "1h", // keep the ticker out of the way
	})

	ctx, cancel := context.WithCancel(context.Background())
	triggers := make(chan string, 1)

	done := make(chan error, 1)
	go func() {
		done <- r.agent.Run(ctx, triggers)
	}()

	triggers <- "remote"

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && r.feedHits.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if r.feedHits.Load() == 0 {
		t.Error("trigger did not start a check")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}

func TestStatus(t *testing.T) {
	r := newRig(t, rigOptions{currentVersion: "1.0.0", feedVersion: "2.0.0", sign: true})

	if _, err := r.agent.Check(context.Background(), CheckOptions{}); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	s := r.agent.Status()
	if s.App != "demo-app" {
		t.Errorf("App = %v, want demo-app", s.App)
	}
	if s.State != StateIdle {
		t.Errorf("State = %v, want %v", s.State, StateIdle)
	}
	if s.LastOutcome != "ready" {
		t.Errorf("LastOutcome = %v, want ready", s.LastOutcome)
	}
	if s.LastCheck.IsZero() {
		t.Error("LastCheck should be set")
	}
}
