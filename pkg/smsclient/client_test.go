package smsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestAfricasTalking_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version1/messaging" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("apiKey"); got != "secret" {
			t.Errorf("expected apiKey header, got %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("username") != "herodrop" || r.PostForm.Get("to") != "+254712345678" || r.PostForm.Get("from") != "HeroDrop" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"statusCode":101,"number":"+254712345678","status":"Success","cost":"KES 0.8000","messageId":"ATXid_1"}]}}`))
	}))
	defer server.Close()

	client := NewAfricasTalking(server.URL, "herodrop", "secret", "HeroDrop")
	res, err := client.Send(context.Background(), "+254712345678", "hello")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.MessageID != "ATXid_1" || res.Simulated {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAfricasTalking_RecipientRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 0/1","Recipients":[{"statusCode":403,"number":"+254700000000","status":"InvalidPhoneNumber"}]}}`))
	}))
	defer server.Close()

	_, err := NewAfricasTalking(server.URL, "herodrop", "secret", "").Send(context.Background(), "+254700000000", "hello")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestAfricasTalking_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewAfricasTalking(server.URL, "herodrop", "bad", "").Send(context.Background(), "+254712345678", "hello")
	if err == nil || errors.Is(err, ErrRejected) {
		t.Fatalf("expected transport-level error, got %v", err)
	}
}

func TestTwilio_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("unexpected basic auth %q %q", user, pass)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "+254712345678" || r.PostForm.Get("From") != "+15005550006" || r.PostForm.Get("Body") != "hello" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer server.Close()

	res, err := NewTwilio(server.URL, "AC123", "token", "+15005550006").Send(context.Background(), "+254712345678", "hello")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.MessageID != "SM1" || res.Status != "queued" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTwilio_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number.","status":400}`))
	}))
	defer server.Close()

	_, err := NewTwilio(server.URL, "AC123", "token", "+15005550006").Send(context.Background(), "nope", "hello")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestLogSender_SimulatesSuccess(t *testing.T) {
	res, err := NewLogSender(zap.NewNop()).Send(context.Background(), "+254712345678", "hello")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !res.Simulated || res.Status != "Success" {
		t.Fatalf("unexpected result %+v", res)
	}
}
