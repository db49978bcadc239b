package alog_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock"

	"github.com/trickstertwo/alog"
	"github.com/trickstertwo/alog/internal/testsub"
	"github.com/trickstertwo/alog/subscriber/console"
)

func newSystem(t *testing.T, opts alog.Options) *alog.System {
	t.Helper()
	sys := alog.NewSystem(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})
	return sys
}

func stop(t *testing.T, sys *alog.System, name string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Stop(ctx, name))
}

// events collects lifecycle events on a buffered channel.
func events() (chan alog.LifecycleEvent, alog.Observer) {
	ch := make(chan alog.LifecycleEvent, 64)
	return ch, alog.ObserverFunc(func(e alog.LifecycleEvent) { ch <- e })
}

func waitEvent(t *testing.T, ch <-chan alog.LifecycleEvent, kind alog.LifecycleKind) alog.LifecycleEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestInfoShownDebugHidden(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	var out bytes.Buffer
	require.NoError(t, sys.Init(console.NewWithWriter(alog.FilterInfo, &out)))

	c := sys.Caller("app")
	c.Debug().Msg("hidden")
	c.Info().Msg("hello")
	stop(t, sys, alog.DefaultName)

	require.Equal(t, "INFO app: hello\n", out.String())
}

func TestFilterBoundaryIsInclusive(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	rec := testsub.New(alog.FilterWarn)
	require.NoError(t, sys.Init(rec))

	c := sys.Caller("t")
	require.False(t, c.Enabled(alog.LevelInfo))
	require.True(t, c.Enabled(alog.LevelWarn))
	c.Log(alog.LevelInfo, "below")
	c.Log(alog.LevelWarn, "at")
	c.Log(alog.LevelError, "above")

	// Records that skip the caller's check are still filtered by the actor.
	ref, err := sys.Resolve(alog.DefaultName)
	require.NoError(t, err)
	require.NoError(t, ref.Send(alog.NewRecord(alog.LevelDebug, "t", "direct")))

	stats, err := sys.Stats(context.Background(), alog.DefaultName)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, uint64(1), stats[0].Filtered)

	got := rec.Records()
	require.Len(t, got, 2)
	require.Equal(t, "at", got[0].Message)
	require.Equal(t, "above", got[1].Message)
}

func TestInitTwiceFails(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	first := testsub.New(alog.FilterInfo)
	require.NoError(t, sys.Init(first))

	err := sys.Init(testsub.New(alog.FilterInfo))
	require.ErrorIs(t, err, alog.ErrAlreadyInitialized)

	sys.Caller("t").Info().Msg("still first")
	require.True(t, first.WaitFor(1, time.Second))
}

func TestPerCallerOrder(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	rec := testsub.New(alog.FilterTrace)
	require.NoError(t, sys.Init(rec))

	const perCaller = 100
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := sys.Caller("order")
			for i := 0; i < perCaller; i++ {
				c.Info().Int("seq", i).Msg("r")
			}
		}()
	}
	wg.Wait()
	require.True(t, rec.WaitFor(2*perCaller, 5*time.Second))

	next := map[string]int64{}
	for _, r := range rec.Records() {
		seq, ok := r.Field("seq")
		require.True(t, ok)
		unit := r.Unit.String()
		require.Equal(t, next[unit], seq.Int64, "unit %s out of order", unit)
		next[unit]++
	}
	require.Len(t, next, 2)
}

func TestFrozenClockAndWith(t *testing.T) {
	ft := time.Date(2030, 2, 2, 3, 4, 5, 0, time.UTC)
	sys := newSystem(t, alog.Options{Clock: xclock.NewFrozen(ft)})
	rec := testsub.New(alog.FilterInfo)
	require.NoError(t, sys.Init(rec))

	child := sys.Caller("api").With(alog.Str("request_id", "r-1"))
	child.Info().Str("path", "/api").Int("status", 200).Dur("took", time.Second).Msg("done")
	require.True(t, rec.WaitFor(1, time.Second))

	e := rec.Records()[0]
	require.True(t, e.Time.Equal(ft), "ts %s", e.Time)
	require.Equal(t, "done", e.Message)
	require.Equal(t, "request_id", e.Fields[0].K, "bound fields come first")
	assertHasStr(t, e.Fields, "request_id", "r-1")
	assertHasStr(t, e.Fields, "path", "/api")
	assertHasInt64(t, e.Fields, "status", 200)
	assertHasDur(t, e.Fields, "took", time.Second)
}

func TestDefaultTargetAndSource(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	rec := testsub.New(alog.FilterInfo)
	require.NoError(t, sys.Init(rec))

	c := sys.Caller("")
	require.Equal(t, "github.com/trickstertwo/alog_test", c.Target())

	c.WithSource().Info().Msg("here")
	require.True(t, rec.WaitFor(1, time.Second))
	src := rec.Records()[0].Source
	require.Contains(t, src.File, "system_test.go")
	require.Positive(t, src.Line)
}

func TestStopDrainsThenReinit(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	first := testsub.New(alog.FilterInfo)
	require.NoError(t, sys.Init(first))

	c := sys.Caller("t")
	for i := 0; i < 500; i++ {
		c.Info().Int("i", i).Msg("queued")
	}
	stop(t, sys, alog.DefaultName)
	require.Equal(t, 500, first.Len(), "stop consumes everything queued before it")
	require.Equal(t, 1, first.Closed())

	_, err := sys.Resolve(alog.DefaultName)
	var nf *alog.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.NoError(t, nf.Cause)

	// The stale binding fails once, then rebinds after a fresh Init.
	require.ErrorIs(t, c.Deliver(alog.NewRecord(alog.LevelInfo, "t", "lost")), alog.ErrNameNotFound)

	second := testsub.New(alog.FilterInfo)
	require.NoError(t, sys.Init(second))
	c.Info().Msg("again")
	require.True(t, second.WaitFor(1, time.Second))
	require.Equal(t, 500, first.Len())
}

func TestSupervisorRestartHealsStaleBinding(t *testing.T) {
	ch, obs := events()
	sys := newSystem(t, alog.Options{Observers: []alog.Observer{obs}})

	var (
		mu   sync.Mutex
		subs []*testsub.Recorder
	)
	factory := func() (alog.Subscriber, error) {
		r := testsub.New(alog.FilterInfo)
		r.Fail = func(rec alog.Record) error {
			if rec.Message == "boom" {
				return errors.Wrap(alog.ErrSinkUnavailable, "disk gone")
			}
			return nil
		}
		mu.Lock()
		subs = append(subs, r)
		mu.Unlock()
		return r, nil
	}
	err := sys.NewBuilder().
		WithFactory(factory).
		WithSupervisor(alog.SupervisorConfig{Restart: alog.RestartOnFailure, MinBackoff: 5 * time.Millisecond}).
		Init()
	require.NoError(t, err)
	waitEvent(t, ch, alog.LifecycleStarted)

	c := sys.Caller("svc")
	c.Info().Msg("before")
	c.Error().Msg("boom")

	crashed := waitEvent(t, ch, alog.LifecycleCrashed)
	require.ErrorIs(t, crashed.Err, alog.ErrSinkUnavailable)
	restarted := waitEvent(t, ch, alog.LifecycleRestarted)
	require.Equal(t, 1, restarted.Restarts)

	c.Info().Msg("after")
	mu.Lock()
	require.Len(t, subs, 2)
	fresh := subs[1]
	mu.Unlock()
	require.True(t, fresh.WaitFor(1, time.Second))
	require.Equal(t, "after", fresh.Records()[0].Message)

	ref, err := sys.Resolve(alog.DefaultName)
	require.NoError(t, err)
	require.Equal(t, restarted.Ref, ref)
}

func TestRestartLimitLeavesNameUnregistered(t *testing.T) {
	ch, obs := events()
	sys := newSystem(t, alog.Options{Observers: []alog.Observer{obs}})

	factory := func() (alog.Subscriber, error) { return testsub.New(alog.FilterInfo), nil }
	err := sys.NewBuilder().
		WithName("flaky").
		WithFactory(factory).
		WithSupervisor(alog.SupervisorConfig{Restart: alog.RestartOnFailure, MinBackoff: time.Millisecond, MaxRestarts: 2}).
		Init()
	require.NoError(t, err)

	ref, err := sys.Resolve("flaky")
	require.NoError(t, err)
	require.NoError(t, ref.Kill(nil))

	for restarts := 0; ; {
		select {
		case e := <-ch:
			switch e.Kind {
			case alog.LifecycleRestarted:
				restarts++
				require.NoError(t, e.Ref.Kill(nil))
				continue
			case alog.LifecycleGaveUp:
				require.Equal(t, 2, restarts)
				require.ErrorIs(t, e.Err, alog.ErrRestartLimitExceeded)
			default:
				continue
			}
		case <-time.After(5 * time.Second):
			t.Fatal("supervisor never gave up")
		}
		break
	}

	_, err = sys.Resolve("flaky")
	require.ErrorIs(t, err, alog.ErrNameNotFound)
	require.ErrorIs(t, err, alog.ErrRestartLimitExceeded)

	c := sys.CallerFor("flaky", "t")
	require.False(t, c.Enabled(alog.LevelError))
	require.ErrorIs(t, c.Deliver(alog.NewRecord(alog.LevelError, "t", "x")), alog.ErrRestartLimitExceeded)

	// A fresh Init clears the terminal fault.
	require.NoError(t, sys.NewBuilder().WithName("flaky").WithSubscriber(testsub.New(alog.FilterInfo)).Init())
	_, err = sys.Resolve("flaky")
	require.NoError(t, err)
}

func TestRestartNeverReleasesNameWithCause(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	err := sys.NewBuilder().
		WithSubscriber(testsub.New(alog.FilterInfo)).
		WithSupervisor(alog.SupervisorConfig{Restart: alog.RestartNever}).
		Init()
	require.NoError(t, err)

	ref, err := sys.Resolve(alog.DefaultName)
	require.NoError(t, err)
	require.NoError(t, ref.Kill(errors.New("operator")))
	<-ref.Done()

	require.Eventually(t, func() bool {
		_, err := sys.Resolve(alog.DefaultName)
		var nf *alog.NotFoundError
		return errors.As(err, &nf) && nf.Cause != nil && nf.Cause.Error() == "operator"
	}, time.Second, time.Millisecond)

	require.NoError(t, sys.Init(testsub.New(alog.FilterInfo)), "a dead name can be initialised again")
}

func TestNonRenewableSubscriberGivesUpOnRestart(t *testing.T) {
	ch, obs := events()
	sys := newSystem(t, alog.Options{Observers: []alog.Observer{obs}})
	require.NoError(t, sys.NewBuilder().
		WithSubscriber(testsub.New(alog.FilterInfo)).
		WithSupervisor(alog.SupervisorConfig{MinBackoff: time.Millisecond}).
		Init())

	ref, err := sys.Resolve(alog.DefaultName)
	require.NoError(t, err)
	require.NoError(t, ref.Kill(nil))

	gave := waitEvent(t, ch, alog.LifecycleGaveUp)
	require.ErrorIs(t, gave.Err, alog.ErrNotRenewable)
	_, err = sys.Resolve(alog.DefaultName)
	require.ErrorIs(t, err, alog.ErrNotRenewable)
}

// flakyWriter fails the writes it is told to and records the rest.
type flakyWriter struct {
	mu    sync.Mutex
	fails int
	buf   bytes.Buffer
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fails > 0 {
		w.fails--
		return 0, errors.New("disk unplugged")
	}
	return w.buf.Write(p)
}

func (w *flakyWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestConsoleSinkFailureIsSupervised(t *testing.T) {
	ch, obs := events()
	sys := newSystem(t, alog.Options{Observers: []alog.Observer{obs}})
	w := &flakyWriter{fails: 1}
	require.NoError(t, sys.NewBuilder().
		WithSubscriber(console.NewWithWriter(alog.FilterInfo, w)).
		WithSupervisor(alog.SupervisorConfig{MinBackoff: 10 * time.Millisecond}).
		Init())

	c := sys.Caller("net")
	c.Info().Msg("lost")

	crashed := waitEvent(t, ch, alog.LifecycleCrashed)
	require.ErrorIs(t, crashed.Err, alog.ErrSinkUnavailable)
	waitEvent(t, ch, alog.LifecycleRestarted)

	c.Info().Msg("listening")
	stop(t, sys, alog.DefaultName)
	require.Equal(t, "INFO net: listening\n", w.String())
}

func TestRoundRobinPool(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	var (
		mu   sync.Mutex
		subs []*testsub.Recorder
	)
	factory := func() (alog.Subscriber, error) {
		r := testsub.New(alog.FilterInfo)
		mu.Lock()
		subs = append(subs, r)
		mu.Unlock()
		return r, nil
	}
	require.NoError(t, sys.NewBuilder().WithName("pool").WithFactory(factory).WithPoolSize(3).Init())
	require.Len(t, sys.Registry().Members("pool"), 3)

	for i := 0; i < 3; i++ {
		c := sys.CallerFor("pool", "rr")
		c.Info().Int("caller", i).Msg("one each")
		c.Info().Int("caller", i).Msg("sticky")
	}
	for i, r := range subs {
		require.True(t, r.WaitFor(2, time.Second), "member %d", i)
		got := r.Records()
		require.Len(t, got, 2)
		require.Equal(t, got[0].Unit, got[1].Unit, "a caller stays on its member")
	}

	stats, err := sys.Stats(context.Background(), "pool")
	require.NoError(t, err)
	require.Len(t, stats, 3)
}

func TestPoolNeedsRenewableSubscriber(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	err := sys.NewBuilder().WithSubscriber(testsub.New(alog.FilterInfo)).WithPoolSize(2).Init()
	require.ErrorIs(t, err, alog.ErrNotRenewable)

	err = sys.NewBuilder().Init()
	require.ErrorIs(t, err, alog.ErrNoSubscriber)

	// Nothing was left bound by the failed attempts.
	require.NoError(t, sys.Init(testsub.New(alog.FilterInfo)))
}

func TestRegistryNameAlreadyBound(t *testing.T) {
	reg := alog.NewRegistry()
	defer reg.Close()

	a := alog.Spawn("x", testsub.New(alog.FilterInfo), alog.SpawnOptions{})
	b := alog.Spawn("x", testsub.New(alog.FilterInfo), alog.SpawnOptions{})
	defer b.Stop()

	require.NoError(t, reg.Register("x", a))
	require.NoError(t, reg.Register("x", a), "same ref is a no-op")
	require.ErrorIs(t, reg.Register("x", b), alog.ErrNameAlreadyBound)

	got, err := reg.Resolve("x")
	require.NoError(t, err)
	require.Equal(t, a, got)

	require.NoError(t, a.Stop())
	<-a.Done()
	require.NoError(t, reg.Register("x", b), "a dead holder does not keep the name")
	require.Equal(t, []string{"x"}, reg.Names())

	require.True(t, reg.Deregister("x", b))
	_, err = reg.Resolve("x")
	require.ErrorIs(t, err, alog.ErrNameNotFound)

	reg.Close()
	require.ErrorIs(t, reg.Register("y", b), alog.ErrSystemClosed)
}

func TestRegisterCannotHijackSupervisedName(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	require.NoError(t, sys.Init(testsub.New(alog.FilterInfo)))

	intruder := alog.Spawn(alog.DefaultName, testsub.New(alog.FilterInfo), alog.SpawnOptions{})
	defer intruder.Stop()
	require.ErrorIs(t, sys.Registry().Register(alog.DefaultName, intruder), alog.ErrNameAlreadyBound)
}

func TestShutdownStopsEverything(t *testing.T) {
	sys := alog.NewSystem(alog.Options{})
	a := testsub.New(alog.FilterInfo)
	b := testsub.New(alog.FilterInfo)
	require.NoError(t, sys.Init(a))
	require.NoError(t, sys.NewBuilder().WithName("audit").WithSubscriber(b).Init())

	sys.Caller("t").Info().Msg("x")
	sys.CallerFor("audit", "t").Info().Msg("y")

	require.NoError(t, sys.Shutdown(context.Background()))
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
	require.Equal(t, 1, a.Closed())
	require.Equal(t, 1, b.Closed())

	_, err := sys.Resolve(alog.DefaultName)
	require.ErrorIs(t, err, alog.ErrSystemClosed)
}

func assertHasStr(t *testing.T, fs []alog.Field, k, v string) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == alog.KindString && f.Str == v {
			return
		}
	}
	t.Fatalf("missing string field %q=%q in %+v", k, v, fs)
}

func assertHasInt64(t *testing.T, fs []alog.Field, k string, v int64) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == alog.KindInt64 && f.Int64 == v {
			return
		}
	}
	t.Fatalf("missing int64 field %q=%d in %+v", k, v, fs)
}

func assertHasDur(t *testing.T, fs []alog.Field, k string, v time.Duration) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == alog.KindDuration && f.Dur == v {
			return
		}
	}
	t.Fatalf("missing duration field %q=%s in %+v", k, v, fs)
}

func TestFactoryReturningNilIsRejected(t *testing.T) {
	sys := newSystem(t, alog.Options{})
	err := sys.NewBuilder().
		WithFactory(func() (alog.Subscriber, error) { return nil, nil }).
		Init()
	require.ErrorIs(t, err, alog.ErrNoSubscriber)

	_, err = sys.Resolve(alog.DefaultName)
	require.ErrorIs(t, err, alog.ErrNameNotFound, "a rejected init leaves the name free")
}

func TestFactoryReturningNilOnRestartGivesUp(t *testing.T) {
	ch, obs := events()
	sys := newSystem(t, alog.Options{Observers: []alog.Observer{obs}})
	calls := 0
	err := sys.NewBuilder().
		WithFactory(func() (alog.Subscriber, error) {
			calls++
			if calls == 1 {
				return testsub.New(alog.FilterInfo), nil
			}
			return nil, nil
		}).
		WithSupervisor(alog.SupervisorConfig{MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond, MaxRestarts: 2}).
		Init()
	require.NoError(t, err)

	ref, err := sys.Resolve(alog.DefaultName)
	require.NoError(t, err)
	require.NoError(t, ref.Kill(nil))

	gave := waitEvent(t, ch, alog.LifecycleGaveUp)
	require.ErrorIs(t, gave.Err, alog.ErrRestartLimitExceeded)
	_, err = sys.Resolve(alog.DefaultName)
	require.ErrorIs(t, err, alog.ErrNameNotFound)
}
