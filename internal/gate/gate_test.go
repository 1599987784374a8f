package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type stubChecker struct {
	member bool
	err    error
	calls  int
}

func (s *stubChecker) IsChannelMember(_ context.Context, _ string, _ int64) (bool, error) {
	s.calls++
	return s.member, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseOwnerIDs(t *testing.T) {
	t.Parallel()

	owners := ParseOwnerIDs(" 123, 456 ,,abc, 789")
	if len(owners) != 3 {
		t.Fatalf("parsed %d owners, want 3", len(owners))
	}
	for _, id := range []int64{123, 456, 789} {
		if _, ok := owners[id]; !ok {
			t.Fatalf("owner %d missing", id)
		}
	}
}

func TestAllowOpenWhenNoChannel(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{}
	g := New(testLogger(), checker, "", "")
	if !g.Allow(context.Background(), 42) {
		t.Fatal("no channel configured should admit everyone")
	}
	if checker.calls != 0 {
		t.Fatal("membership should not be checked without a channel")
	}
}

func TestAllowMember(t *testing.T) {
	t.Parallel()

	g := New(testLogger(), &stubChecker{member: true}, "mychannel", "")
	if !g.Allow(context.Background(), 42) {
		t.Fatal("channel member should be admitted")
	}
}

func TestAllowRejectsNonMember(t *testing.T) {
	t.Parallel()

	g := New(testLogger(), &stubChecker{member: false}, "mychannel", "")
	if g.Allow(context.Background(), 42) {
		t.Fatal("non-member should be rejected")
	}
}

func TestAllowOwnerBypassesCheck(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{err: errors.New("api down")}
	g := New(testLogger(), checker, "mychannel", "42")
	if !g.Allow(context.Background(), 42) {
		t.Fatal("owner should bypass membership check")
	}
	if checker.calls != 0 {
		t.Fatal("owner path should not hit the API")
	}
}

func TestAllowFailsClosedOnCheckerError(t *testing.T) {
	t.Parallel()

	g := New(testLogger(), &stubChecker{err: errors.New("api down")}, "mychannel", "1")
	if g.Allow(context.Background(), 42) {
		t.Fatal("lookup failure should reject non-owners")
	}
}
