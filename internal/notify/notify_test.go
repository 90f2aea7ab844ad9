package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	mu        sync.Mutex
	delivered []boxoffice.Notification
	release   chan struct{}
	err       error
}

func (sender *recordingSender) Name() string { return "recording" }

func (sender *recordingSender) Send(_ context.Context, notification boxoffice.Notification) error {
	if sender.release != nil {
		<-sender.release
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	sender.delivered = append(sender.delivered, notification)
	return sender.err
}

func (sender *recordingSender) count() int {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	return len(sender.delivered)
}

func waitFor(test *testing.T, condition func() bool) {
	test.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	test.Fatalf("condition not met before deadline")
}

func TestDispatcherDeliversToEverySender(test *testing.T) {
	test.Parallel()
	first := &recordingSender{}
	second := &recordingSender{}
	dispatcher := NewDispatcher(zap.NewNop(), Config{Workers: 1}, first, second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationUnitsIssued, Recipient: "buyer@example.com"})
	dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationGatewayAlert})
	waitFor(test, func() bool { return first.count() == 2 && second.count() == 2 })

	cancel()
	if err := <-done; err != nil {
		test.Fatalf("run: %v", err)
	}
	if err := dispatcher.Run(context.Background()); !errors.Is(err, ErrDispatcherRunning) {
		test.Fatalf("expected ErrDispatcherRunning, got %v", err)
	}
}

func TestDispatcherDropsWhenQueueFull(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)
	dispatcher := NewDispatcher(zap.New(core), Config{QueueSize: 1, Workers: 1})
	dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationGatewayAlert, Subject: "first"})
	dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationGatewayAlert, Subject: "second"})
	if dispatcher.Dropped() != 1 {
		test.Fatalf("expected one dropped notification, got %d", dispatcher.Dropped())
	}
	entries := logs.FilterMessage("notification dropped").All()
	if len(entries) != 1 || entries[0].ContextMap()["subject"] != "second" {
		test.Fatalf("unexpected drop logs %+v", entries)
	}
}

func TestDispatcherDrainsOnShutdown(test *testing.T) {
	test.Parallel()
	sender := &recordingSender{release: make(chan struct{})}
	dispatcher := NewDispatcher(zap.NewNop(), Config{Workers: 1, QueueSize: 8}, sender)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()
	for index := 0; index < 4; index++ {
		dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationUnitsIssued})
	}
	cancel()
	close(sender.release)
	if err := <-done; err != nil {
		test.Fatalf("run: %v", err)
	}
	if sender.count() != 4 {
		test.Fatalf("expected all queued notifications delivered, got %d", sender.count())
	}
	dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationUnitsIssued})
	if dispatcher.Dropped() != 1 {
		test.Fatalf("expected notification after shutdown to be dropped")
	}
}

func TestDispatcherLogsSenderFailures(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)
	sender := &recordingSender{err: errors.New("smtp down")}
	dispatcher := NewDispatcher(zap.New(core), Config{Workers: 1}, sender)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()
	dispatcher.Notify(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationFulfillment})
	waitFor(test, func() bool { return logs.FilterMessage("notification delivery failed").Len() == 1 })
	cancel()
	<-done
}

func TestLogSenderLevels(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	sender := NewLogSender(zap.New(core))
	_ = sender.Send(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationGatewayAlert, Subject: "paystack failing"})
	_ = sender.Send(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationUnitsIssued, Recipient: "buyer@example.com"})
	entries := logs.All()
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].ContextMap()["recipient"] != recipientOperator {
		test.Fatalf("unexpected operator entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.InfoLevel || entries[1].ContextMap()["recipient"] != "buyer@example.com" {
		test.Fatalf("unexpected buyer entry %+v", entries[1])
	}
}

func TestWebhookSenderPostsOperatorAlerts(test *testing.T) {
	test.Parallel()
	var mu sync.Mutex
	var received []webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var payload webhookPayload
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender, err := NewWebhookSender(server.URL, time.Second)
	if err != nil {
		test.Fatalf("sender: %v", err)
	}
	alert := boxoffice.Notification{Kind: boxoffice.NotificationGatewayAlert, Subject: "gateway failing", Attributes: map[string]string{"provider": "paystack"}}
	if err := sender.Send(context.Background(), alert); err != nil {
		test.Fatalf("send: %v", err)
	}
	if err := sender.Send(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationUnitsIssued, Recipient: "buyer@example.com"}); err != nil {
		test.Fatalf("send buyer: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Attributes["provider"] != "paystack" || received[0].Kind != string(boxoffice.NotificationGatewayAlert) {
		test.Fatalf("unexpected webhook payloads %+v", received)
	}
}

func TestWebhookSenderReportsFailures(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	sender, err := NewWebhookSender(server.URL, time.Second)
	if err != nil {
		test.Fatalf("sender: %v", err)
	}
	if err := sender.Send(context.Background(), boxoffice.Notification{Kind: boxoffice.NotificationGatewayAlert}); err == nil {
		test.Fatalf("expected error for 500 response")
	}
	if _, err := NewWebhookSender("ftp://alerts", time.Second); !errors.Is(err, boxoffice.ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config error, got %v", err)
	}
}
