package bus

import (
	"context"
	"testing"
	"time"

	"trendsignal/internal/logger"
	"trendsignal/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10, logger.Nop())
	out1 := fo.Subscribe("redis")
	out2 := fo.Subscribe("ws")

	input := make(chan model.Update, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Update{Symbol: "NIFTY", Timeframe: model.TF1m}

	for name, out := range map[string]<-chan model.Update{"out1": out1, "out2": out2} {
		select {
		case u := <-out:
			if u.Symbol != "NIFTY" {
				t.Errorf("%s: expected NIFTY, got %s", name, u.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for update", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New(1, logger.Nop())
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	var dropped []string
	fo.OnDrop = func(name string) { dropped = append(dropped, name) }

	input := make(chan model.Update)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		input <- model.Update{Symbol: "NIFTY"}
		<-fast // keep the fast subscriber drained
	}
	close(input)
	<-done

	if len(dropped) != 2 {
		t.Fatalf("dropped %v, want two drops for slow", dropped)
	}
	for _, name := range dropped {
		if name != "slow" {
			t.Errorf("drop reported for %q", name)
		}
	}
	stats := fo.ChannelStats()
	if len(stats) != 2 || stats[1].Name != "slow" || stats[1].Len != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
