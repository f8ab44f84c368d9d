package domain_test

import (
	"testing"
	"time"

	"cipherchat/internal/domain"
)

func TestResolveTimestamp(t *testing.T) {
	now := time.UnixMilli(5000)
	cases := []struct {
		name       string
		serverMs   int64
		clientMs   int64
		wantKind   domain.TimestampKind
		wantMillis int64
	}{
		{"server wins over client", 1000, 2000, domain.TimeServer, 1000},
		{"server only", 1000, 0, domain.TimeServer, 1000},
		{"client when server missing", 0, 2000, domain.TimeClient, 2000},
		{"wall clock when both missing", 0, 0, domain.TimeUnknown, 5000},
		{"negative server falls through", -1, 2000, domain.TimeClient, 2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.ResolveTimestamp(tc.serverMs, tc.clientMs, now)
			if got.Kind() != tc.wantKind || got.Millis() != tc.wantMillis {
				t.Fatalf("got kind=%v millis=%d, want kind=%v millis=%d",
					got.Kind(), got.Millis(), tc.wantKind, tc.wantMillis)
			}
		})
	}
}
