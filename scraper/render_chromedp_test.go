package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
)

func TestIdleWatcher_IgnoresOtherLoaders(t *testing.T) {
	w := newIdleWatcher()

	// blank start page and a child frame go idle first
	w.observe(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "blank", Name: "networkIdle"})
	w.observe(&page.EventLifecycleEvent{FrameID: "ad-frame", LoaderID: "nav", Name: "networkIdle"})
	w.observe(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "nav", Name: "load"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.wait(ctx, "main", "nav"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wait to time out on unrelated idle events, got %v", err)
	}
}

func TestIdleWatcher_MatchesNavigationLoader(t *testing.T) {
	w := newIdleWatcher()
	w.observe(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "blank", Name: "networkIdle"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		w.observe(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "nav", Name: "networkIdle"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.wait(ctx, "main", "nav"); err != nil {
		t.Fatalf("expected wait to return on matching idle, got %v", err)
	}
}

func TestIdleWatcher_IdleBeforeWait(t *testing.T) {
	w := newIdleWatcher()
	w.observe(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "nav", Name: "networkIdle"})
	w.observe("not a lifecycle event")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.wait(ctx, "main", "nav"); err != nil {
		t.Fatalf("expected already-seen idle to satisfy wait, got %v", err)
	}
}
