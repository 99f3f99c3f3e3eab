// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bvk/dexbot/exchange"
	"github.com/bvk/dexbot/gobs"
	"github.com/shopspring/decimal"
)

// positionController is the intent surface of the trader. Open and close
// requests arrive over HTTP and are forwarded to it.
type positionController interface {
	Open(ctx context.Context, side string, size, takeProfit, stopLoss decimal.Decimal) error
	CloseNow(ctx context.Context, urgent bool) error
	State() gobs.ControllerState
}

type OpenRequest struct {
	// Side is LONG or SHORT.
	Side string

	Size decimal.Decimal

	// TakeProfit and StopLoss are trigger prices for the protective
	// orders. Zero values skip the corresponding order.
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

type OpenResponse struct {
	State gobs.ControllerState
}

type CloseRequest struct {
	// Urgent closes with a marketable order instead of resting at the
	// near touch.
	Urgent bool
}

type CloseResponse struct {
	State gobs.ControllerState
}

func httpPostJSON(w http.ResponseWriter, r *http.Request, req any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method must be POST", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, fmt.Sprintf("could not decode the request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// openHandler serves position open intents from the command line client.
func openHandler(controller positionController) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := new(OpenRequest)
		if !httpPostJSON(w, r, req) {
			return
		}
		if req.Side != exchange.Long && req.Side != exchange.Short {
			http.Error(w, fmt.Sprintf("side must be %s or %s", exchange.Long, exchange.Short), http.StatusBadRequest)
			return
		}
		if !req.Size.IsPositive() {
			http.Error(w, "size must be positive", http.StatusBadRequest)
			return
		}
		if err := controller.Open(r.Context(), req.Side, req.Size, req.TakeProfit, req.StopLoss); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(&OpenResponse{State: controller.State()})
	})
}

// closeHandler serves position close intents.
func closeHandler(controller positionController) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := new(CloseRequest)
		if !httpPostJSON(w, r, req) {
			return
		}
		if err := controller.CloseNow(r.Context(), req.Urgent); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("content-type", "application/json")
		json.NewEncoder(w).Encode(&CloseResponse{State: controller.State()})
	})
}
