package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/mymmrac/telego"
)

type fakeSender struct {
	params []*telego.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return &telego.Message{}, nil
}

func TestTelegramNotifierSendsToUserChat(t *testing.T) {
	s := &fakeSender{}
	n := NewTelegramNotifierWithSender(s)

	if err := n.Notify(context.Background(), 4242, "привет"); err != nil {
		t.Fatal(err)
	}
	if len(s.params) != 1 {
		t.Fatalf("отправлено %d", len(s.params))
	}
	if s.params[0].ChatID.ID != 4242 || s.params[0].Text != "привет" {
		t.Errorf("params = %+v", s.params[0])
	}
}

func TestTelegramNotifierWrapsError(t *testing.T) {
	boom := errors.New("boom")
	n := NewTelegramNotifierWithSender(&fakeSender{err: boom})
	if err := n.Notify(context.Background(), 1, "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	if err := n.Notify(context.Background(), 1, "x"); err != nil {
		t.Fatal(err)
	}
}
