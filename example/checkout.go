// Package example wires together a small set of services purely to
// exercise the router, context, and state-machine packages end to end;
// see cmd/example for the illustrative transport that serves them.
package example

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	durable "github.com/durablehq/sdk-go"
)

type OrderRequest struct {
	CustomerID string   `json:"customerId"`
	Items      []string `json:"items"`
}

type OrderResponse struct {
	ID    string `json:"id"`
	Price int    `json:"price"`
}

const OrdersServiceName = "Orders"

// Orders is a stateless service placing flat-rate orders: it assigns an
// id, prices the order, and charges a (simulated) payment provider, all
// through SideEffect so a replay never re-runs either.
var Orders = durable.
	NewService(OrdersServiceName).
	Handler("Place", durable.NewServiceHandler(placeOrder))

func placeOrder(ctx durable.Context, request OrderRequest) (response OrderResponse, err error) {
	orderID, err := durable.RunAs(ctx, func(durable.RunContext) (string, error) {
		return uuid.New().String(), nil
	})
	if err != nil {
		return response, err
	}
	response.ID = orderID

	// Flat rate: every item costs 30.
	price := len(request.Items) * 30
	response.Price = price

	_, err = durable.RunAs(ctx, func(ctx durable.RunContext) (bool, error) {
		log := ctx.Log().With().Str("orderId", orderID).Int("price", price).Logger()
		if rand.Float64() < 0.5 {
			log.Info().Msg("charge succeeded")
			return true, nil
		}
		log.Error().Msg("charge failed")
		return false, fmt.Errorf("payment provider declined the charge")
	})
	if err != nil {
		return response, err
	}

	// TODO: emit an order-confirmation notification once that service exists.

	return response, nil
}
