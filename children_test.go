package children

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mustEqual is a small assertion helper for in-package, white-box checks;
// black-box behavior below leans on testify instead.
func mustEqual(t *testing.T, actual, expect interface{}) {
	t.Helper()
	if actual != expect {
		t.Fatalf("%+v != %+v", actual, expect)
	}
}

type recordingSupervisor struct {
	mu  sync.Mutex
	got []Message
}

func (s *recordingSupervisor) Deliver(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	return nil
}

func (s *recordingSupervisor) last() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) == 0 {
		return nil
	}
	return s.got[len(s.got)-1]
}

const testTimeout = 2 * time.Second

func awaitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("group never terminated")
	}
}

// TestEchoElement covers the baseline scenario: a single element that
// answers every ask with the payload it received.
func TestEchoElement(t *testing.T) {
	sup := &recordingSupervisor{}
	factory := func(BastionContext) Runnable {
		return RunnableFunc(func(ctx BastionContext) error {
			for {
				env, err := ctx.Recv(ctx.Context())
				if err != nil {
					return nil
				}
				env.Reply(env.Payload)
			}
		})
	}
	g := New(sup, nil).WithExec(factory).WithRedundancy(1)
	g.LaunchElems()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	ref := g.Ref()
	require.NoError(t, ref.Start())

	elem := ref.Elems()[0]
	ans, err := elem.Ask("hello")
	require.NoError(t, err)

	reply, err := ans.Await(context.Background())
	require.NoError(t, err)
	mustEqual(t, reply, "hello")

	require.NoError(t, ref.Stop())
	awaitRun(t, done)
	mustEqual(t, sup.last(), Message(Stopped(g.id)))
}

// TestPreStartReplay covers scenario 2: a message sent before Start is
// buffered and replayed, in order, once Start arrives.
func TestPreStartReplay(t *testing.T) {
	sup := &recordingSupervisor{}
	processed := make(chan interface{}, 1)
	factory := func(BastionContext) Runnable {
		return RunnableFunc(func(ctx BastionContext) error {
			env, err := ctx.Recv(ctx.Context())
			if err != nil {
				return nil
			}
			processed <- env.Payload
			env.Reply("ok")
			<-ctx.Context().Done()
			return ctx.Context().Err()
		})
	}
	g := New(sup, nil).WithExec(factory).WithRedundancy(1)
	g.LaunchElems()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	elem := g.Ref().Elems()[0]
	ans, err := elem.Ask("buffered-payload")
	require.NoError(t, err)

	select {
	case <-processed:
		t.Fatal("message was processed before Start was ever sent")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, g.Ref().Start())

	select {
	case got := <-processed:
		mustEqual(t, got, "buffered-payload")
	case <-time.After(testTimeout):
		t.Fatal("buffered message was never replayed after Start")
	}

	reply, err := ans.Await(context.Background())
	require.NoError(t, err)
	mustEqual(t, reply, "ok")

	require.NoError(t, g.Ref().Stop())
	awaitRun(t, done)
}

// TestPanicFaultsElementAndGroup covers scenario 3: a panicking element
// is converted into a Faulted notice rather than crashing the process,
// and the group kills its remaining siblings and reports Faulted upward.
func TestPanicFaultsElementAndGroup(t *testing.T) {
	sup := &recordingSupervisor{}
	survived := make(chan struct{})
	var once sync.Once
	factory := func(ctx BastionContext) Runnable {
		return RunnableFunc(func(ctx BastionContext) error {
			once.Do(func() {
				panic("boom")
			})
			<-ctx.Context().Done()
			close(survived)
			return ctx.Context().Err()
		})
	}
	g := New(sup, nil).WithExec(factory).WithRedundancy(2)
	g.LaunchElems()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	require.NoError(t, g.Ref().Start())

	awaitRun(t, done)

	select {
	case <-survived:
	case <-time.After(testTimeout):
		t.Fatal("sibling element was never cancelled after the panic")
	}

	fault, ok := sup.last().(interface{ messageKind() string })
	require.True(t, ok)
	mustEqual(t, fault.messageKind(), "Faulted")
}

// TestFailureReturnTriggersGroupStop covers scenario 4: an element
// returning a plain error also faults its group, exactly like a panic
// does.
func TestFailureReturnTriggersGroupStop(t *testing.T) {
	sup := &recordingSupervisor{}
	boom := errors.New("boom")
	factory := func(BastionContext) Runnable {
		return RunnableFunc(func(ctx BastionContext) error {
			return boom
		})
	}
	g := New(sup, nil).WithExec(factory).WithRedundancy(1)
	g.LaunchElems()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	require.NoError(t, g.Ref().Start())
	awaitRun(t, done)

	msg, ok := sup.last().(faultedMsg)
	require.True(t, ok)
	mustEqual(t, errors.Is(msg.err, boom), true)
}

// TestKillCancelsAllElements covers scenario 5: killing a group cancels
// every element's running future and the group still reports Stopped
// (not Faulted) upward -- a deliberate asymmetry, see DESIGN.md.
func TestKillCancelsAllElements(t *testing.T) {
	sup := &recordingSupervisor{}
	const redundancy = 5
	var mu sync.Mutex
	cancelled := 0
	factory := func(BastionContext) Runnable {
		return RunnableFunc(func(ctx BastionContext) error {
			<-ctx.Context().Done()
			mu.Lock()
			cancelled++
			mu.Unlock()
			return ctx.Context().Err()
		})
	}
	g := New(sup, nil).WithExec(factory).WithRedundancy(redundancy)
	g.LaunchElems()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	require.NoError(t, g.Ref().Start())
	require.NoError(t, g.Ref().Kill())
	awaitRun(t, done)

	mu.Lock()
	mustEqual(t, cancelled, redundancy)
	mu.Unlock()
	mustEqual(t, sup.last(), Message(Stopped(g.id)))
}

// TestBroadcastReachesEveryElement covers the broadcast form of scenario
// 2: one message sent before Start and one sent after, on a multi-element
// group, and every currently-launched element observes the same ordered
// sequence.
func TestBroadcastReachesEveryElement(t *testing.T) {
	sup := &recordingSupervisor{}
	const redundancy = 2

	var mu sync.Mutex
	seen := make(map[ID][]interface{})
	gotAll := make(chan struct{})

	factory := func(BastionContext) Runnable {
		return RunnableFunc(func(ctx BastionContext) error {
			for i := 0; i < 2; i++ {
				env, err := ctx.Recv(ctx.Context())
				if err != nil {
					return nil
				}
				mu.Lock()
				seen[ctx.ID()] = append(seen[ctx.ID()], env.Payload)
				total := 0
				for _, vs := range seen {
					total += len(vs)
				}
				mu.Unlock()
				if total == redundancy*2 {
					select {
					case gotAll <- struct{}{}:
					default:
					}
				}
			}
			<-ctx.Context().Done()
			return ctx.Context().Err()
		})
	}
	g := New(sup, nil).WithExec(factory).WithRedundancy(redundancy)
	g.LaunchElems()

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	ref := g.Ref()
	require.NoError(t, ref.Broadcast("before-start"))
	require.NoError(t, ref.Start())
	require.NoError(t, ref.Broadcast("after-start"))

	select {
	case <-gotAll:
	case <-time.After(testTimeout):
		t.Fatal("not every element observed both broadcast messages")
	}

	mu.Lock()
	for _, elem := range ref.Elems() {
		mustEqual(t, len(seen[elem.ID()]), 2)
		mustEqual(t, seen[elem.ID()][0], "before-start")
		mustEqual(t, seen[elem.ID()][1], "after-start")
	}
	mu.Unlock()

	require.NoError(t, ref.Stop())
	awaitRun(t, done)
}

// TestClosedInboxFaults covers scenario 6: a group whose mailbox has been
// discarded before anyone ever sent it anything observes the close and
// reports a fault rather than hanging forever.
func TestClosedInboxFaults(t *testing.T) {
	sup := &recordingSupervisor{}
	g := New(sup, nil).WithExec(DefaultFactory).WithRedundancy(0)

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	g.mbox.close()

	select {
	case err := <-done:
		mustEqual(t, errors.Is(err, errInboxClosed), true)
	case <-time.After(testTimeout):
		t.Fatal("group never observed its own closed inbox")
	}
	mustEqual(t, sup.last(), Message(Faulted(g.id, errInboxClosed)))
}
