package closures

import "fmt"

// Action is the dynamic value a resolved Closure produces when it
// represents a unit of deferred work (as opposed to a plain data value):
// spawn's closure, and the two combinators below, all resolve to Action.
//
// ctx is opaque here so this package stays independent of core: core
// passes its own *Process through RunAction and type-asserts it back out
// inside the Action bodies it registers (see core.WrapBody).
type Action func(ctx interface{}) (interface{}, error)

// continuationFactory builds the next Closure to run given the previous
// step's result, used by cpBind.
type continuationFactory func(result interface{}) (Closure, error)

// RegisterContinuation names a function usable as cpBind's second
// argument. Continuations must be named ahead of time — like any other
// closure — so a bind round-trips to a remote node.
func RegisterContinuation[T any](t *RemoteTable, label string, k func(T) (Closure, error)) {
	if t.continuations == nil {
		t.continuations = make(map[string]continuationFactory)
	}
	t.continuations[label] = func(result interface{}) (Closure, error) {
		v, ok := result.(T)
		if !ok {
			return Closure{}, fmt.Errorf("closures: continuation %q got %T, want %T", label, result, v)
		}
		return k(v)
	}
}

type seqEnv struct{ A, B Closure }

// CpSeq builds the "run a, then b" combinator as a Closure with the
// standard label "core/seq" (§4.5, §6). It round-trips across nodes
// because running it again only needs a and b's own labels.
func CpSeq(t *RemoteTable, a, b Closure) (Closure, error) {
	return MakeClosure(t.serializer, "core/seq", seqEnv{A: a, B: b})
}

type bindEnv struct {
	A                 Closure
	ContinuationLabel string
}

// CpBind builds the "run a, pass its result to the continuation named
// continuationLabel" combinator as a Closure with the standard label
// "core/bind". continuationLabel must have been registered with
// RegisterContinuation on every node that might resolve this closure.
func CpBind(t *RemoteTable, a Closure, continuationLabel string) (Closure, error) {
	return MakeClosure(t.serializer, "core/bind", bindEnv{A: a, ContinuationLabel: continuationLabel})
}

// RunAction resolves c as an Action and executes it against ctx, the entry
// point the core uses both for spawn's root closure and recursively inside
// the combinators below.
func RunAction(t *RemoteTable, c Closure, ctx interface{}) (interface{}, error) {
	action, err := UnClosure[Action](t, c)
	if err != nil {
		return nil, err
	}
	return action(ctx)
}

func registerCombinators(t *RemoteTable) {
	Register[Action](t, "core/seq", func(env []byte) (Action, error) {
		var se seqEnv
		if err := t.serializer.Decode(env, &se); err != nil {
			return nil, err
		}
		return func(ctx interface{}) (interface{}, error) {
			if _, err := RunAction(t, se.A, ctx); err != nil {
				return nil, err
			}
			return RunAction(t, se.B, ctx)
		}, nil
	})

	Register[Action](t, "core/bind", func(env []byte) (Action, error) {
		var be bindEnv
		if err := t.serializer.Decode(env, &be); err != nil {
			return nil, err
		}
		return func(ctx interface{}) (interface{}, error) {
			result, err := RunAction(t, be.A, ctx)
			if err != nil {
				return nil, err
			}
			factory, ok := t.continuations[be.ContinuationLabel]
			if !ok {
				return nil, fmt.Errorf("%w: continuation %q", ErrClosureNotFound, be.ContinuationLabel)
			}
			next, err := factory(result)
			if err != nil {
				return nil, err
			}
			return RunAction(t, next, ctx)
		}, nil
	})
}
