package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/mail"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/schedule"
	"github.com/linkedin-autopost/pkg/logger"
)

const runID = "20260309-a1b2c3d4e5f6"

// arrival is a message that becomes visible at a point in fake time
type arrival struct {
	at      time.Time
	subject string
}

// fakeInbox shows every message that has arrived by the fake clock's now
type fakeInbox struct {
	clock    *schedule.FakeClock
	arrivals []arrival
	// failPolls makes the n-th poll (1-based) fail
	failPolls map[int]bool

	mu      sync.Mutex
	polls   []time.Time
	logouts int
}

func (f *fakeInbox) UnseenSubjects(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	f.polls = append(f.polls, now)
	if f.failPolls[len(f.polls)] {
		return nil, errs.Wrap(errs.ErrTransient, "imap poll", errors.New("connection reset by peer"))
	}
	var subjects []string
	for _, a := range f.arrivals {
		if !a.at.After(now) {
			subjects = append(subjects, a.subject)
		}
	}
	return subjects, nil
}

func (f *fakeInbox) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

type fakeDialer struct {
	inbox *fakeInbox
	// failures is how many dials fail before one succeeds; -1 fails forever
	failures int
	err      error
	dials    int
}

func (d *fakeDialer) Dial(ctx context.Context) (mail.Inbox, error) {
	d.dials++
	if d.failures < 0 || d.dials <= d.failures {
		if d.err != nil {
			return nil, d.err
		}
		return nil, errs.Wrap(errs.ErrTransient, "imap dial", errors.New("no route to host"))
	}
	return d.inbox, nil
}

var day = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func newGate(start time.Time, hour int, grace time.Duration, arrivals ...arrival) (*Gate, *schedule.FakeClock, *fakeInbox, *fakeDialer) {
	clock := schedule.NewFakeClock(start)
	inbox := &fakeInbox{clock: clock, arrivals: arrivals}
	dialer := &fakeDialer{inbox: inbox}
	gate := NewGate(dialer, clock, Config{
		Window:       schedule.Window{Hour: hour, Grace: grace},
		PollInterval: 30 * time.Second,
	}, logger.Nop())
	return gate, clock, inbox, dialer
}

func TestAwaitApproved(t *testing.T) {
	gate, clock, inbox, _ := newGate(at(6, 0, 5), 9, 15*time.Minute,
		arrival{at: at(8, 0, 0), subject: "Re: [Preview] LinkedIn " + runID},
		arrival{at: at(9, 4, 10), subject: "Re: approve " + runID},
		arrival{at: at(9, 4, 11), subject: "APPROVE " + runID},
	)

	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalApproved {
		t.Fatalf("state = %q, want approved", res.State)
	}
	if want := at(9, 4, 30); !res.ApprovedAt.Equal(want) || !clock.Now().Equal(want) {
		t.Fatalf("approved at %v (clock %v), want %v", res.ApprovedAt, clock.Now(), want)
	}
	if res.Subject != "Re: approve "+runID {
		t.Fatalf("matched subject %q", res.Subject)
	}
	// one long sleep to 09:00, then 30s polls
	sleeps := clock.Sleeps()
	if sleeps[0] != at(9, 0, 0).Sub(at(6, 0, 5)) {
		t.Fatalf("first sleep = %v", sleeps[0])
	}
	for _, d := range sleeps[1:] {
		if d != 30*time.Second {
			t.Fatalf("poll sleep = %v, want 30s", d)
		}
	}
	// stops at first match
	if len(inbox.polls) != 10 || res.Polls != 10 {
		t.Fatalf("polls = %d (result %d), want 10", len(inbox.polls), res.Polls)
	}
	if inbox.logouts != 1 {
		t.Fatalf("logouts = %d, want 1", inbox.logouts)
	}
}

func TestAwaitExpired(t *testing.T) {
	gate, clock, inbox, _ := newGate(at(6, 0, 0), 9, 15*time.Minute,
		arrival{at: at(9, 1, 0), subject: "Looks good!"},
	)

	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalExpired || res.Reason != models.ReasonApprovalExpired {
		t.Fatalf("result = %+v, want expired", res)
	}
	if !clock.Now().Equal(at(9, 15, 0)) {
		t.Fatalf("clock ended at %v, want deadline", clock.Now())
	}
	// 09:00:00 through 09:15:00 inclusive
	if len(inbox.polls) != 31 {
		t.Fatalf("polls = %d, want 31", len(inbox.polls))
	}
	if last := inbox.polls[len(inbox.polls)-1]; !last.Equal(at(9, 15, 0)) {
		t.Fatalf("last poll at %v, want the deadline", last)
	}
	if inbox.logouts != 1 {
		t.Fatalf("logouts = %d, want 1", inbox.logouts)
	}
}

func TestAwaitIgnoresOtherRuns(t *testing.T) {
	others := []string{
		"APPROVE 20260309-a1b2c3d4e5f",     // prefix of this run
		"APPROVE 20260309-a1b2c3d4e5f6x",   // this run is a prefix
		"APPROVE 20260309-a1b2c3d4e5f6-2",  // suffixed
		"APPROVE 20260308-a1b2c3d4e5f6",    // yesterday
		"DISAPPROVE 20260309-a1b2c3d4e5f6", // different word
		"APPROVE20260309-a1b2c3d4e5f6",     // no separator
		"[Preview] LinkedIn " + runID,      // our own preview
	}
	var arrivals []arrival
	for _, s := range others {
		arrivals = append(arrivals, arrival{at: at(9, 0, 0), subject: s})
	}
	gate, _, _, _ := newGate(at(8, 0, 0), 9, 5*time.Minute, arrivals...)

	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalExpired {
		t.Fatalf("cross-run subject approved this run: %+v", res)
	}
}

func TestAwaitWindowBoundaries(t *testing.T) {
	hours := []int{0, 9, 23}
	graces := []time.Duration{0, time.Minute, 15 * time.Minute, 61 * time.Minute}

	for _, h := range hours {
		for _, g := range graces {
			offsets := []time.Duration{0, g / 2, g, g + time.Second}
			for _, off := range offsets {
				name := fmt.Sprintf("H%d_G%v_T+%v", h, g, off)
				t.Run(name, func(t *testing.T) {
					target := at(h, 0, 0)
					gate, _, _, _ := newGate(day, h, g, arrival{at: target.Add(off), subject: "Re: APPROVE " + runID})

					res, err := gate.Await(context.Background(), runID)
					if err != nil {
						t.Fatalf("Await: %v", err)
					}
					want := models.ApprovalExpired
					if off <= g {
						want = models.ApprovalApproved
					}
					if res.State != want {
						t.Fatalf("state = %q, want %q", res.State, want)
					}
					if !res.State.Terminal() {
						t.Fatal("gate returned a non-terminal state")
					}
				})
			}
		}
	}
}

func TestAwaitStartedInsideWindow(t *testing.T) {
	gate, clock, inbox, _ := newGate(at(9, 3, 0), 9, 15*time.Minute,
		arrival{at: at(8, 59, 0), subject: "APPROVE " + runID},
	)
	res, err := gate.Await(context.Background(), runID)
	if err != nil || res.State != models.ApprovalApproved {
		t.Fatalf("Await = %+v, %v", res, err)
	}
	if len(clock.Sleeps()) != 0 || len(inbox.polls) != 1 {
		t.Fatalf("expected an immediate poll, sleeps %v polls %d", clock.Sleeps(), len(inbox.polls))
	}
}

func TestAwaitStartedAfterDeadline(t *testing.T) {
	gate, _, _, dialer := newGate(at(10, 0, 0), 9, 15*time.Minute,
		arrival{at: at(9, 0, 0), subject: "APPROVE " + runID},
	)
	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalExpired || dialer.dials != 0 {
		t.Fatalf("result %+v after %d dials, want expired without dialing", res, dialer.dials)
	}
}

func TestAwaitToleratesPollErrors(t *testing.T) {
	gate, _, inbox, _ := newGate(at(8, 0, 0), 9, 15*time.Minute,
		arrival{at: at(9, 0, 0), subject: "APPROVE " + runID},
	)
	inbox.failPolls = map[int]bool{1: true, 2: true, 3: true}

	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalApproved || res.PollErrors != 3 || res.Polls != 1 || len(inbox.polls) != 4 {
		t.Fatalf("result = %+v after %d reads, want approval on 4th read", res, len(inbox.polls))
	}
	if inbox.logouts != 1 {
		t.Fatalf("logouts = %d, want 1", inbox.logouts)
	}
}

func TestAwaitDialRetries(t *testing.T) {
	gate, _, inbox, dialer := newGate(at(8, 0, 0), 9, 15*time.Minute,
		arrival{at: at(9, 0, 0), subject: "APPROVE " + runID},
	)
	dialer.failures = 2

	res, err := gate.Await(context.Background(), runID)
	if err != nil || res.State != models.ApprovalApproved {
		t.Fatalf("Await = %+v, %v", res, err)
	}
	if dialer.dials != 3 || inbox.logouts != 1 {
		t.Fatalf("dials = %d logouts = %d", dialer.dials, inbox.logouts)
	}
}

func TestAwaitInboxUnavailable(t *testing.T) {
	gate, _, inbox, dialer := newGate(at(8, 0, 0), 9, 2*time.Minute)
	dialer.failures = -1

	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalExpired || res.Reason != models.ReasonInboxUnavailable {
		t.Fatalf("result = %+v, want expired/inbox_unavailable", res)
	}
	if dialer.dials != 5 || inbox.logouts != 0 {
		t.Fatalf("dials = %d logouts = %d", dialer.dials, inbox.logouts)
	}
}

func TestAwaitUnreadableInbox(t *testing.T) {
	gate, _, inbox, dialer := newGate(at(8, 0, 0), 9, 15*time.Minute,
		arrival{at: at(9, 0, 0), subject: "APPROVE " + runID},
	)
	inbox.failPolls = map[int]bool{}
	for i := 1; i <= 40; i++ {
		inbox.failPolls[i] = true
	}

	res, err := gate.Await(context.Background(), runID)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.State != models.ApprovalExpired || res.Reason != models.ReasonInboxUnavailable {
		t.Fatalf("result = %+v, want expired/inbox_unavailable", res)
	}
	// 09:00 through 09:15 inclusive at 30s
	if res.Polls != 0 || res.PollErrors != 31 || len(inbox.polls) != 31 {
		t.Fatalf("polls = %d errors = %d reads = %d", res.Polls, res.PollErrors, len(inbox.polls))
	}
	if dialer.dials != 1 || inbox.logouts != 1 {
		t.Fatalf("dials = %d logouts = %d", dialer.dials, inbox.logouts)
	}
}

func TestAwaitMissingConfiguration(t *testing.T) {
	gate, _, _, dialer := newGate(at(8, 0, 0), 9, 15*time.Minute)
	dialer.failures = -1
	dialer.err = errs.Configuration("EMAIL_USER and EMAIL_PASS are required to read mail")

	if _, err := gate.Await(context.Background(), runID); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAwaitCancelledLogsOut(t *testing.T) {
	clock := schedule.NewFakeClock(at(9, 0, 0))
	inbox := &fakeInbox{clock: clock}
	ctx, cancel := context.WithCancel(context.Background())
	dialer := dialerFunc(func(context.Context) (mail.Inbox, error) {
		cancel()
		return inbox, nil
	})
	gate := NewGate(dialer, clock, Config{Window: schedule.Window{Hour: 9, Grace: time.Minute}}, logger.Nop())

	if _, err := gate.Await(ctx, runID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inbox.logouts != 1 {
		t.Fatalf("logouts = %d, want 1", inbox.logouts)
	}
}

type dialerFunc func(context.Context) (mail.Inbox, error)

func (f dialerFunc) Dial(ctx context.Context) (mail.Inbox, error) { return f(ctx) }

func TestMatchesApproval(t *testing.T) {
	tests := []struct {
		subject string
		want    bool
	}{
		{"APPROVE " + runID, true},
		{"approve " + runID, true},
		{"Re: Approve " + runID + " please", true},
		{"RE: [Preview] ... APPROVE " + runID + "!", true},
		{"APPROVE  " + runID, true},
		{"APPROVE " + runID + "0", false},
		{"APPROVE " + runID[:len(runID)-1], false},
		{"APPROVE x" + runID, false},
		{"UNAPPROVE " + runID, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := MatchesApproval(tt.subject, runID); got != tt.want {
			t.Errorf("MatchesApproval(%q) = %v, want %v", tt.subject, got, tt.want)
		}
	}
}
