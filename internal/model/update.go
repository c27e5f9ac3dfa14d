package model

import "github.com/bytedance/sonic"

// Update is the full derived state for one bar: what OnNewBar returns and
// what the live service fans out to its sinks.
type Update struct {
	Symbol    string            `json:"symbol"`
	Timeframe Timeframe         `json:"timeframe"`
	Bar       Bar               `json:"bar"`
	Snapshot  IndicatorSnapshot `json:"snapshot"`
	Trend     Trend             `json:"trend"`
	Signals   []Signal          `json:"signals"`
}

// Key returns "symbol:timeframe".
func (u *Update) Key() string {
	return u.Symbol + ":" + string(u.Timeframe)
}

// JSON returns the JSON-encoded update (ignoring errors for hot-path usage).
func (u *Update) JSON() []byte {
	b, _ := sonic.Marshal(u)
	return b
}
