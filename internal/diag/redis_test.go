package diag

import (
	"context"
	"testing"
	"time"

	"github.com/dzm2020/regflow/internal/actor"
	"github.com/dzm2020/regflow/pkg/register"
)

func TestRedisReporter(t *testing.T) {
	if _, err := NewRedisReporter("127.0.0.1:6379", "k", 0, "xml"); err == nil {
		t.Fatal("未知编码应该报错")
	}

	for _, codec := range []string{"msgpack", "json"} {
		r, err := NewRedisReporter("127.0.0.1:6379", "regflow:test:"+codec, time.Minute, codec)
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err = r.Ping(ctx); err != nil {
			cancel()
			_ = r.Close()
			t.Skipf("redis 不可用，跳过: %v", err)
		}

		snaps := []actor.Snapshot{
			{ID: 1, Name: "src", State: actor.StateTerminated.String(), Acts: 10,
				Pools: map[string]register.Counts{"out": {Depth: 2, Free: 2}}},
			{ID: 2, Name: "sink", State: actor.StateWaitingForInput.String(), Acts: 9,
				Queued: map[string]int{"in": 1}},
		}
		if err = r.Report(ctx, snaps); err != nil {
			t.Fatalf("%s 上报失败: %v", codec, err)
		}
		got, err := r.Load(ctx)
		if err != nil {
			t.Fatalf("%s 读取失败: %v", codec, err)
		}
		if len(got) != 2 || got[1].Acts != 10 || got[1].Pools["out"].Free != 2 || got[2].Queued["in"] != 1 {
			t.Fatalf("%s 读回的快照不一致: %+v", codec, got)
		}
		_ = r.Clear(ctx)
		cancel()
		_ = r.Close()
	}
}
