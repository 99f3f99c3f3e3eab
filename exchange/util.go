// Copyright (c) 2023 BVK Chaitanya

package exchange

import (
	"fmt"
	"time"
)

func Equal(a, b *Order) bool {
	return a.OrderID == b.OrderID &&
		a.ClientID == b.ClientID &&
		a.Side == b.Side &&
		a.CreateTime.Time.Equal(b.CreateTime.Time) &&
		a.Size.Equal(b.Size) &&
		a.Price.Equal(b.Price) &&
		a.FilledSize.Equal(b.FilledSize) &&
		a.FilledPrice.Equal(b.FilledPrice) &&
		a.Status == b.Status &&
		a.Done == b.Done &&
		a.DoneReason == b.DoneReason
}

// Merge combines a known order with a fresh update from the exchange. Filled
// sizes and terminal statuses never regress.
func Merge(known, update *Order) *Order {
	if known.OrderID != update.OrderID {
		return known
	}

	tmp := new(Order)
	*tmp = *known

	if known.ClientID == 0 && update.ClientID != 0 {
		tmp.ClientID = update.ClientID
	}
	if known.Side == "" && update.Side != "" {
		tmp.Side = update.Side
	}
	if known.CreateTime.IsZero() && !update.CreateTime.IsZero() {
		tmp.CreateTime = update.CreateTime
	}
	if known.FilledSize.LessThan(update.FilledSize) {
		tmp.FilledSize = update.FilledSize
		tmp.FilledPrice = update.FilledPrice
	}
	if known.FilledPrice.IsZero() && !update.FilledPrice.IsZero() {
		tmp.FilledPrice = update.FilledPrice
	}
	if known.Status == "" && update.Status != "" {
		tmp.Status = update.Status
	}
	if known.Status == "OPEN" && update.Status != "OPEN" && update.Status != "" {
		tmp.Status = update.Status
	}
	if known.Status != "FILLED" && update.Status == "FILLED" {
		tmp.Status = update.Status
	}
	if !known.Done && update.Done {
		tmp.Done = update.Done
	}
	if known.DoneReason == "" && update.DoneReason != "" {
		tmp.DoneReason = update.DoneReason
	}
	return tmp
}

func (v *Order) String() string {
	return fmt.Sprintf("{ID: %s ClientID %d %s %s %s@%s Filled %s@%s Status %s CreatedAt %s}",
		v.OrderID, v.ClientID, v.Market, v.Side, v.Size.StringFixed(4), v.Price.StringFixed(3),
		v.FilledSize.StringFixed(4), v.FilledPrice.StringFixed(3), v.Status,
		v.CreateTime.Time.Format(time.DateTime))
}
