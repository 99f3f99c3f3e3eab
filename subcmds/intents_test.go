// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bvk/dexbot/gobs"
	"github.com/bvk/dexbot/trader"
	"github.com/shopspring/decimal"
)

type fakeController struct {
	state gobs.ControllerState

	opens  int
	closes int
}

func (f *fakeController) Open(ctx context.Context, side string, size, takeProfit, stopLoss decimal.Decimal) error {
	if f.state.State != trader.StateFlat {
		return fmt.Errorf("cannot open from state %s", f.state.State)
	}
	f.opens++
	f.state = gobs.ControllerState{State: trader.StateOpen, Side: side, Size: size}
	return nil
}

func (f *fakeController) CloseNow(ctx context.Context, urgent bool) error {
	if f.state.State != trader.StateOpen {
		return fmt.Errorf("cannot close from state %s", f.state.State)
	}
	f.closes++
	f.state = gobs.ControllerState{State: trader.StateFlat}
	return nil
}

func (f *fakeController) State() gobs.ControllerState {
	return f.state
}

func postJSON(t *testing.T, handler http.Handler, req any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestOpenHandler(t *testing.T) {
	f := &fakeController{state: gobs.ControllerState{State: trader.StateFlat}}
	handler := openHandler(f)

	w := postJSON(t, handler, &OpenRequest{Side: "LONG", Size: decimal.NewFromInt(1)})
	if w.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", w.Code, w.Body)
	}
	resp := new(OpenResponse)
	if err := json.Unmarshal(w.Body.Bytes(), resp); err != nil {
		t.Fatal(err)
	}
	if resp.State.State != trader.StateOpen {
		t.Fatalf("want state OPEN, got %s", resp.State.State)
	}
	if f.opens != 1 {
		t.Fatalf("want one open intent, got %d", f.opens)
	}

	// A second open must be rejected because the position is already open.
	w = postJSON(t, handler, &OpenRequest{Side: "LONG", Size: decimal.NewFromInt(1)})
	if w.Code != http.StatusConflict {
		t.Fatalf("want status 409 for a double open, got %d", w.Code)
	}
}

func TestOpenHandlerValidation(t *testing.T) {
	f := &fakeController{state: gobs.ControllerState{State: trader.StateFlat}}
	handler := openHandler(f)

	w := postJSON(t, handler, &OpenRequest{Side: "SIDEWAYS", Size: decimal.NewFromInt(1)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want status 400 for a bad side, got %d", w.Code)
	}
	w = postJSON(t, handler, &OpenRequest{Side: "LONG"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want status 400 for a zero size, got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want status 405 for GET, got %d", w.Code)
	}

	if f.opens != 0 {
		t.Fatalf("no intent must reach the controller, got %d", f.opens)
	}
}

func TestCloseHandler(t *testing.T) {
	f := &fakeController{
		state: gobs.ControllerState{State: trader.StateOpen, Side: "LONG", Size: decimal.NewFromInt(1)},
	}
	handler := closeHandler(f)

	w := postJSON(t, handler, &CloseRequest{Urgent: true})
	if w.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", w.Code, w.Body)
	}
	resp := new(CloseResponse)
	if err := json.Unmarshal(w.Body.Bytes(), resp); err != nil {
		t.Fatal(err)
	}
	if resp.State.State != trader.StateFlat {
		t.Fatalf("want state FLAT, got %s", resp.State.State)
	}

	// Closing a flat position is a conflict, not a success.
	w = postJSON(t, handler, &CloseRequest{})
	if w.Code != http.StatusConflict {
		t.Fatalf("want status 409 for a double close, got %d", w.Code)
	}
	if f.closes != 1 {
		t.Fatalf("want one close intent, got %d", f.closes)
	}
}
