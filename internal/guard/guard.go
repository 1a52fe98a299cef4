// Package guard は保護されたビューの前段で認証状態を確定させる。
//
// 状態は initializing -> verifying -> {authenticated | unauthenticated} の順に
// 一方向に遷移する。検証が終わるまで保護対象のハンドラは実行しない。
package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/verifier"
)

// State は認証ガードの状態。
type State string

const (
	StateInitializing    State = "initializing"
	StateVerifying       State = "verifying"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Terminal は検証が完了した状態かを返す。
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateUnauthenticated
}

// Verifier はセッション検証のインターフェース。
type Verifier interface {
	Verify(ctx context.Context, creds verifier.Credentials) verifier.Result
}

// Observer は状態遷移の通知先。
type Observer func(State)

// Option はGuardの任意設定。
type Option func(*Guard)

// WithObserver は状態遷移の通知先を追加する。
func WithObserver(o Observer) Option {
	return func(g *Guard) { g.observers = append(g.observers, o) }
}

// WithMinVerifying はverifying状態に留まる最小時間を設定する。
// 読み込み表示のちらつきを抑えるためだけのもので、結果は変わらない。
func WithMinVerifying(d time.Duration) Option {
	return func(g *Guard) { g.minVerifying = d }
}

// Guard は認証ガード。状態はRunの呼び出しごとに独立しており、並行利用できる。
type Guard struct {
	verifier     Verifier
	observers    []Observer
	minVerifying time.Duration
}

// New はGuardを生成する。
func New(v Verifier, opts ...Option) *Guard {
	g := &Guard{verifier: v}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) transition(s State) {
	for _, o := range g.observers {
		o(s)
	}
}

// Run は資格情報を1回だけ検証し、最終状態とユーザーを返す。
// ctxが検証中にキャンセルされた場合は結果を破棄し、
// 最終状態へは遷移せずStateVerifyingとnilを返す。
func (g *Guard) Run(ctx context.Context, creds verifier.Credentials) (State, *model.User) {
	g.transition(StateInitializing)
	g.transition(StateVerifying)

	start := time.Now()
	res := g.verifier.Verify(ctx, creds)

	if remaining := g.minVerifying - time.Since(start); remaining > 0 {
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	if ctx.Err() != nil {
		slog.Debug("verification result discarded", slog.String("reason", ctx.Err().Error()))
		return StateVerifying, nil
	}

	if res.User == nil {
		g.transition(StateUnauthenticated)
		return StateUnauthenticated, nil
	}

	g.transition(StateAuthenticated)
	return StateAuthenticated, res.User
}
