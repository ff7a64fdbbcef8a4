package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
)

func TestRunHooks_Order(t *testing.T) {
	const identity = "test-order"
	var calls []int

	RegisterHook(identity, func(context.Context, *sqlx.DB, Options) error {
		calls = append(calls, 1)
		return nil
	})
	RegisterHook(identity, func(context.Context, *sqlx.DB, Options) error {
		calls = append(calls, 2)
		return nil
	})

	if err := runHooks(context.Background(), identity, nil, Options{}); err != nil {
		t.Fatalf("runHooks() error = %v", err)
	}
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("hook calls = %v, want [1 2]", calls)
	}
}

func TestRunHooks_StopsOnError(t *testing.T) {
	const identity = "test-failing"
	errSetup := errors.New("setup failed")
	ranAfter := false

	RegisterHook(identity, func(context.Context, *sqlx.DB, Options) error {
		return errSetup
	})
	RegisterHook(identity, func(context.Context, *sqlx.DB, Options) error {
		ranAfter = true
		return nil
	})

	err := runHooks(context.Background(), identity, nil, Options{})
	if !errors.Is(err, errSetup) {
		t.Fatalf("runHooks() error = %v, want %v", err, errSetup)
	}
	if ranAfter {
		t.Error("hook after failing hook ran")
	}
}

func TestRunHooks_UnknownIdentity(t *testing.T) {
	if err := runHooks(context.Background(), "no-hooks-here", nil, Options{}); err != nil {
		t.Errorf("runHooks() error = %v, want nil", err)
	}
}
