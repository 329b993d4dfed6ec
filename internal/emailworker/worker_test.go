package emailworker

import (
	"context"
	"errors"
	"testing"

	imap "github.com/BrianLeishman/go-imap"

	"github.com/kilang-desa-murni/crm/internal/brokerconsumer"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

type fakeDialer struct {
	uids        []int
	emails      map[int]*imap.Email
	seen        []int
	noopErr     error
	selectErr   error
	searchErr   error
	fetchErr    error
	markSeenErr error
}

func (f *fakeDialer) SelectFolder(string) error { return f.selectErr }
func (f *fakeDialer) GetUIDs(string) ([]int, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.uids, nil
}
func (f *fakeDialer) GetEmails(uids ...int) (map[int]*imap.Email, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.emails, nil
}
func (f *fakeDialer) MarkSeen(uid int) error {
	if f.markSeenErr != nil {
		return f.markSeenErr
	}
	f.seen = append(f.seen, uid)
	return nil
}
func (f *fakeDialer) Noop() error  { return f.noopErr }
func (f *fakeDialer) Close() error { return nil }

type fakePublisher struct {
	published []brokerconsumer.SiteRequestMessage
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, msg brokerconsumer.SiteRequestMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func testWorker(pub Publisher) *Worker {
	return &Worker{log: logger.New(logger.Config{Level: "error", Format: "console"}), publisher: pub}
}

func TestPollOnceSkipsWhenNoUnseenMessages(t *testing.T) {
	pub := &fakePublisher{}
	w := testWorker(pub)
	fd := &fakeDialer{uids: nil}

	if err := w.pollOnce(context.Background(), fd); err != nil {
		t.Fatalf("pollOnce returned error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no publishes, got %d", len(pub.published))
	}
}

func TestPollOnceParsesAndPublishesEachMessage(t *testing.T) {
	pub := &fakePublisher{}
	w := testWorker(pub)
	fd := &fakeDialer{
		uids: []int{7},
		emails: map[int]*imap.Email{
			7: {Text: "Товар: Платок\nID: SHAWL-1\nИмя: Анна\nТелефон: +7700\nКомментарий: срочно\n"},
		},
	}

	if err := w.pollOnce(context.Background(), fd); err != nil {
		t.Fatalf("pollOnce returned error: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	got := pub.published[0]
	if got.ProductName != "Платок" || got.Phone != "+7700" || got.Name != "Анна" {
		t.Fatalf("published message = %+v", got)
	}
	if len(fd.seen) != 1 || fd.seen[0] != 7 {
		t.Fatalf("expected uid 7 marked seen, got %v", fd.seen)
	}
}

func TestPollOnceLeavesMessageUnseenOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	w := testWorker(pub)
	fd := &fakeDialer{
		uids:   []int{3},
		emails: map[int]*imap.Email{3: {Text: "Товар: Платок\n"}},
	}

	if err := w.pollOnce(context.Background(), fd); err != nil {
		t.Fatalf("pollOnce should log and continue, got error: %v", err)
	}
	if len(fd.seen) != 0 {
		t.Fatalf("expected message to stay unseen on publish failure, got %v", fd.seen)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	if got := nextBackoff(90, 100); got != 100 {
		t.Fatalf("nextBackoff = %v, want capped at 100", got)
	}
	if got := nextBackoff(10, 100); got != 20 {
		t.Fatalf("nextBackoff = %v, want 20", got)
	}
}
