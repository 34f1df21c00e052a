package warm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/hiercache/cache"
	"github.com/jonwraymond/hiercache/key"
)

// recordingTarget captures the order in which warming operations write.
type recordingTarget struct {
	writes []string
}

func (r *recordingTarget) Set(_ context.Context, k key.Key, _ []byte) error {
	r.writes = append(r.writes, "item:"+k.ID())
	return nil
}

func (r *recordingTarget) SetQueryResult(_ context.Context, fingerprint string, _ cache.QueryResult) error {
	r.writes = append(r.writes, "query:"+fingerprint)
	return nil
}

func itemOp(name string, priority int, id string) Operation {
	return Operation{
		Name:     name,
		Priority: priority,
		Run: func(ctx context.Context, target Target) error {
			k, err := key.Primary("product", id)
			if err != nil {
				return err
			}
			return target.Set(ctx, k, []byte("warmed"))
		},
	}
}

func TestWarmer_RunAllHonorsPriority(t *testing.T) {
	target := &recordingTarget{}
	w, err := NewWarmer(Config{Interval: time.Minute}, target, nil)
	if err != nil {
		t.Fatalf("NewWarmer: %v", err)
	}

	w.Register(itemOp("background", 1, "low"))
	w.Register(itemOp("critical", 10, "high"))
	w.Register(itemOp("also-critical", 10, "high2"))

	if failures := w.RunAll(context.Background()); len(failures) != 0 {
		t.Fatalf("RunAll failures = %v", failures)
	}

	want := []string{"item:high2", "item:high", "item:low"}
	if len(target.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", target.writes, want)
	}
	for i := range want {
		if target.writes[i] != want[i] {
			t.Errorf("write[%d] = %q, want %q (priority desc, name asc)", i, target.writes[i], want[i])
		}
	}
}

func TestWarmer_RunAllCollectsFailures(t *testing.T) {
	target := &recordingTarget{}
	w, _ := NewWarmer(Config{Interval: time.Minute}, target, nil)

	boom := errors.New("upstream unavailable")
	w.Register(Operation{Name: "broken", Run: func(context.Context, Target) error { return boom }})
	w.Register(itemOp("fine", 0, "1"))

	failures := w.RunAll(context.Background())
	if len(failures) != 1 || !errors.Is(failures["broken"], boom) {
		t.Errorf("failures = %v, want broken->upstream unavailable", failures)
	}
	// The failing operation must not block the others.
	if len(target.writes) != 1 {
		t.Errorf("writes = %v, want the healthy operation's write", target.writes)
	}
}

func TestWarmer_RunAllAppliesTimeout(t *testing.T) {
	target := &recordingTarget{}
	w, _ := NewWarmer(Config{Interval: time.Minute, Timeout: time.Millisecond}, target, nil)

	w.Register(Operation{Name: "slow", Run: func(ctx context.Context, _ Target) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}})

	failures := w.RunAll(context.Background())
	if !errors.Is(failures["slow"], context.DeadlineExceeded) {
		t.Errorf("failures = %v, want slow->deadline exceeded", failures)
	}
}

func TestWarmer_RegisterValidation(t *testing.T) {
	w, _ := NewWarmer(Config{Interval: time.Minute}, &recordingTarget{}, nil)

	if err := w.Register(Operation{Name: "", Run: func(context.Context, Target) error { return nil }}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("nameless operation error = %v, want ErrInvalidOperation", err)
	}
	if err := w.Register(Operation{Name: "norun"}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("runless operation error = %v, want ErrInvalidOperation", err)
	}

	op := itemOp("dup", 0, "1")
	if err := w.Register(op); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := w.Register(op); !errors.Is(err, ErrDuplicateOperation) {
		t.Errorf("duplicate registration error = %v, want ErrDuplicateOperation", err)
	}
}

func TestWarmer_UnregisterIdempotent(t *testing.T) {
	w, _ := NewWarmer(Config{Interval: time.Minute}, &recordingTarget{}, nil)
	w.Register(itemOp("op", 0, "1"))

	w.Unregister("op")
	w.Unregister("op")
	if names := w.OperationNames(); len(names) != 0 {
		t.Errorf("OperationNames = %v, want empty", names)
	}
}

func TestWarmer_OperationNamesOrdered(t *testing.T) {
	w, _ := NewWarmer(Config{Interval: time.Minute}, &recordingTarget{}, nil)
	w.Register(itemOp("beta", 1, "1"))
	w.Register(itemOp("alpha", 1, "2"))
	w.Register(itemOp("gamma", 9, "3"))

	want := []string{"gamma", "alpha", "beta"}
	got := w.OperationNames()
	if len(got) != len(want) {
		t.Fatalf("OperationNames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWarmer_StartStop(t *testing.T) {
	done := make(chan struct{}, 1)
	w, _ := NewWarmer(Config{Interval: 5 * time.Millisecond}, &recordingTarget{}, nil)
	w.Register(Operation{Name: "tick", Run: func(context.Context, Target) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}})

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx) // second call is a no-op

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic loop never ran the operation")
	}

	w.Stop()
	w.Stop()
}

func TestNewWarmer_Validation(t *testing.T) {
	if _, err := NewWarmer(Config{Interval: time.Minute}, nil, nil); err == nil {
		t.Error("nil target accepted")
	}
	if _, err := NewWarmer(Config{}, &recordingTarget{}, nil); err == nil {
		t.Error("zero interval accepted")
	}
}

// The production cache satisfies Target.
var _ Target = (*cache.TwoLayerCache)(nil)
