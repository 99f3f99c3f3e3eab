// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bvk/dexbot/exchange"
	"github.com/shopspring/decimal"
)

// Snapshot is the market data view shared between the owner process and the
// follower processes through a file on disk.
type Snapshot struct {
	Market string `json:"market"`

	OwnerPID  int       `json:"owner_pid"`
	UpdatedAt time.Time `json:"updated_at"`

	Bids []exchange.BookLevel `json:"bids"`
	Asks []exchange.BookLevel `json:"asks"`

	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
	TradeCount int64   `json:"trade_count"`
}

func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

// SpreadPct returns the bid/ask spread as a percent of the midpoint.
func (s *Snapshot) SpreadPct() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	bid, ask := s.Bids[0].Price, s.Asks[0].Price
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return decimal.Zero, false
	}
	return ask.Sub(bid).Div(mid).Mul(decimal.NewFromInt(100)), true
}

// WriteSnapshot publishes the snapshot atomically. Readers polling the file
// concurrently always observe either the previous or the new snapshot in
// full, never a partial write.
func WriteSnapshot(file string, s *Snapshot) (status error) {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("could not marshal snapshot: %w", err)
	}

	fp, err := os.CreateTemp(filepath.Dir(file), ".snapshot*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer func() {
		if status != nil {
			os.Remove(fp.Name())
		}
		fp.Close()
	}()

	if _, err := fp.Write(data); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	if err := os.Rename(fp.Name(), file); err != nil {
		return fmt.Errorf("could not rename temp file to %q: %w", file, err)
	}
	return nil
}

func ReadSnapshot(file string) (*Snapshot, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	s := new(Snapshot)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("could not unmarshal snapshot file %q: %w", file, err)
	}
	return s, nil
}
