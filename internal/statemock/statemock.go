// Package statemock backs the Restate SDK's generated context mock with
// an in-memory key-value store, so virtual-object handlers can be driven
// through real Get/Set/Keys round trips across several calls in a test.
// Values round-trip through JSON the same way the production codec
// serializes durable state.
package statemock

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"testing"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/mocks"
	"github.com/stretchr/testify/mock"
)

// New returns a handler context for one virtual object key, plus the
// underlying generated mock for arranging expectations on everything
// that leaves the object (Object clients, Rand, WaitIter). State
// operations need no arrangement; they hit the store.
func New(t *testing.T, key string) (restate.ObjectContext, *mocks.MockContext) {
	m := mocks.NewMockContext(t)
	state := map[string]json.RawMessage{}

	m.EXPECT().Key().Return(key).Maybe()
	m.EXPECT().Log().Return(slog.Default()).Maybe()

	getCall := m.On("Get", mock.Anything, mock.Anything).Maybe()
	getCall.Run(func(args mock.Arguments) {
		raw, ok := state[args.String(0)]
		if ok {
			if err := json.Unmarshal(raw, args.Get(1)); err != nil {
				t.Fatalf("statemock: decoding state %q: %v", args.String(0), err)
			}
		}
		getCall.ReturnArguments = mock.Arguments{ok, nil}
	})

	m.On("Set", mock.Anything, mock.Anything).Maybe().Run(func(args mock.Arguments) {
		raw, err := json.Marshal(args.Get(1))
		if err != nil {
			t.Fatalf("statemock: encoding state %q: %v", args.String(0), err)
		}
		state[args.String(0)] = raw
	})

	m.On("Clear", mock.Anything).Maybe().Run(func(args mock.Arguments) {
		delete(state, args.String(0))
	})

	keysCall := m.On("Keys").Maybe()
	keysCall.Run(func(mock.Arguments) {
		keysCall.ReturnArguments = mock.Arguments{slices.Sorted(maps.Keys(state)), nil}
	})

	return restate.WithMockContext(m), m
}
