package guard

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/verifier"
)

// verifierFunc は関数をVerifierとして扱うアダプタ。
type verifierFunc func(ctx context.Context, creds verifier.Credentials) verifier.Result

func (f verifierFunc) Verify(ctx context.Context, creds verifier.Credentials) verifier.Result {
	return f(ctx, creds)
}

func fixedResult(res verifier.Result) verifierFunc {
	return func(ctx context.Context, creds verifier.Credentials) verifier.Result { return res }
}

// recordStates は状態遷移を記録するObserverを返す。
func recordStates() (Observer, func() []State) {
	var mu sync.Mutex
	var states []State
	return func(s State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s)
		}, func() []State {
			mu.Lock()
			defer mu.Unlock()
			return append([]State(nil), states...)
		}
}

func TestGuard_Run_Authenticated(t *testing.T) {
	user := &model.User{ID: "1", Email: "a@b.com", Username: "a"}
	obs, states := recordStates()
	g := New(fixedResult(verifier.Result{User: user, Outcome: verifier.OutcomeAuthenticated}), WithObserver(obs))

	state, got := g.Run(context.Background(), verifier.Credentials{SessionID: "s"})

	if state != StateAuthenticated {
		t.Errorf("state = %q, want authenticated", state)
	}
	if got != user {
		t.Errorf("user = %+v, want the verified user", got)
	}
	want := []State{StateInitializing, StateVerifying, StateAuthenticated}
	if !reflect.DeepEqual(states(), want) {
		t.Errorf("transitions = %v, want %v", states(), want)
	}
}

func TestGuard_Run_Unauthenticated(t *testing.T) {
	for _, outcome := range []verifier.Outcome{
		verifier.OutcomeUnauthenticated,
		verifier.OutcomeTransportError,
		verifier.OutcomeBadStatus,
		verifier.OutcomeMalformed,
		verifier.OutcomeNoCredential,
	} {
		t.Run(string(outcome), func(t *testing.T) {
			obs, states := recordStates()
			g := New(fixedResult(verifier.Result{Outcome: outcome}), WithObserver(obs))

			state, user := g.Run(context.Background(), verifier.Credentials{})

			if state != StateUnauthenticated || user != nil {
				t.Errorf("Run = %q, %+v; want unauthenticated, nil", state, user)
			}
			want := []State{StateInitializing, StateVerifying, StateUnauthenticated}
			if !reflect.DeepEqual(states(), want) {
				t.Errorf("transitions = %v, want %v", states(), want)
			}
		})
	}
}

func TestGuard_Run_CancelledDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	obs, states := recordStates()
	g := New(verifierFunc(func(ctx context.Context, creds verifier.Credentials) verifier.Result {
		cancel()
		return verifier.Result{User: &model.User{ID: "1"}, Outcome: verifier.OutcomeAuthenticated}
	}), WithObserver(obs))

	state, user := g.Run(ctx, verifier.Credentials{SessionID: "s"})

	if state != StateVerifying || user != nil {
		t.Errorf("Run = %q, %+v; want verifying, nil", state, user)
	}
	for _, s := range states() {
		if s.Terminal() {
			t.Errorf("no terminal transition expected after cancel, got %v", states())
		}
	}
}

func TestGuard_Run_MinVerifying(t *testing.T) {
	g := New(fixedResult(verifier.Result{Outcome: verifier.OutcomeUnauthenticated}), WithMinVerifying(50*time.Millisecond))

	start := time.Now()
	state, _ := g.Run(context.Background(), verifier.Credentials{})

	if state != StateUnauthenticated {
		t.Errorf("state = %q", state)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 50ms", elapsed)
	}
}

func TestState_Terminal(t *testing.T) {
	if StateInitializing.Terminal() || StateVerifying.Terminal() {
		t.Error("initializing and verifying are not terminal")
	}
	if !StateAuthenticated.Terminal() || !StateUnauthenticated.Terminal() {
		t.Error("authenticated and unauthenticated are terminal")
	}
}
