package example

import (
	"errors"
	"fmt"
	"math/big"

	durable "github.com/durablehq/sdk-go"
)

// Health is a stateless service with a single no-op handler, useful for
// readiness checks against a running invocation engine.
var Health = durable.
	NewService("Health").
	Handler("Ping", durable.NewServiceHandler(
		func(durable.Context, durable.Void) (durable.Void, error) {
			return durable.Void{}, nil
		}))

// Ledger is a keyed virtual object holding one arbitrary-precision
// balance per key, journalling every add through eager state so repeated
// get calls against the same key never re-fetch it.
var Ledger = durable.
	NewObject("Ledger").
	Handler("add", durable.NewObjectHandler(
		func(ctx durable.ObjectContext, deltaText string) (string, error) {
			delta, ok := big.NewInt(0).SetString(deltaText, 10)
			if !ok {
				return "", durable.TerminalError(fmt.Errorf("input must be a valid integer string: %s", deltaText))
			}

			balance, err := durable.GetAs[[]byte](ctx, "balance", durable.WithBinary)
			if err != nil && !errors.Is(err, durable.ErrKeyNotFound) {
				return "", err
			}
			newBalance := big.NewInt(0).Add(big.NewInt(0).SetBytes(balance), delta)
			if err := ctx.Set("balance", newBalance.Bytes()); err != nil {
				return "", err
			}

			return newBalance.String(), nil
		})).
	Handler("get", durable.NewObjectSharedHandler(
		func(ctx durable.ObjectSharedContext, _ durable.Void) (string, error) {
			balance, err := ctx.Get("balance")
			if err != nil {
				return "", err
			}

			return big.NewInt(0).SetBytes(balance).String(), nil
		}))
