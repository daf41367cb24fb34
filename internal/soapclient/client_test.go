package soapclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

func reply(relatesTo, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"
  xmlns:wsa="http://schemas.xmlsoap.org/ws/2004/08/addressing">
 <soap:Header>
  <wsa:Action>%s</wsa:Action>
  <wsa:MessageID>urn:uuid:reply</wsa:MessageID>
  <wsa:RelatesTo>%s</wsa:RelatesTo>
 </soap:Header>
 <soap:Body>%s</soap:Body>
</soap:Envelope>`, wsd.ActionTransferGetResponse.URI(), relatesTo, body)
}

// device answers with respond, given the parsed request
func device(t *testing.T, respond func(w http.ResponseWriter, req *soap.Message, raw string)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		req, err := soap.Parse(data)
		if err != nil {
			t.Errorf("device received malformed request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", transport.ContentType)
		respond(w, req, string(data))
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func newClient() *Client {
	return New(transport.NewClient(time.Second), "urn:uuid:client-1")
}

func TestCall(t *testing.T) {
	requests := make(chan string, 1)
	url := device(t, func(w http.ResponseWriter, req *soap.Message, raw string) {
		requests <- raw
		io.WriteString(w, reply(req.Header.MessageID, ""))
	})

	msg, err := newClient().Call(context.Background(), []string{url}, soap.TemplateTransferGet, soap.Fields{"To": "urn:uuid:dev"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if msg.Action != wsd.ActionTransferGetResponse {
		t.Errorf("Action = %v", msg.Action)
	}
	if raw := <-requests; !strings.Contains(raw, "urn:uuid:client-1") {
		t.Error("request does not carry the client address")
	}
}

func TestCallFallsBackToNextAddress(t *testing.T) {
	url := device(t, func(w http.ResponseWriter, req *soap.Message, raw string) {
		io.WriteString(w, reply(req.Header.MessageID, ""))
	})

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	if _, err := newClient().Call(context.Background(), []string{deadURL, url}, soap.TemplateTransferGet, nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter, req *soap.Message)
		check   func(t *testing.T, msg *soap.Message, err error)
	}{
		{
			name: "uncorrelated reply",
			respond: func(w http.ResponseWriter, req *soap.Message) {
				io.WriteString(w, reply("urn:uuid:someone-else", ""))
			},
			check: func(t *testing.T, msg *soap.Message, err error) {
				if !errors.Is(err, soap.ErrMalformed) {
					t.Errorf("error = %v, want ErrMalformed", err)
				}
			},
		},
		{
			name: "fault",
			respond: func(w http.ResponseWriter, req *soap.Message) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, reply(req.Header.MessageID, `<soap:Fault>
 <soap:Code><soap:Value>soap:Receiver</soap:Value></soap:Code>
 <soap:Reason><soap:Text>busy</soap:Text></soap:Reason>
</soap:Fault>`))
			},
			check: func(t *testing.T, msg *soap.Message, err error) {
				if !soap.IsFault(err) {
					t.Errorf("error = %v, want fault", err)
				}
				if msg == nil {
					t.Error("fault reply should return the parsed message")
				}
			},
		},
		{
			name: "error status without envelope",
			respond: func(w http.ResponseWriter, req *soap.Message) {
				w.WriteHeader(http.StatusServiceUnavailable)
				io.WriteString(w, "try later")
			},
			check: func(t *testing.T, msg *soap.Message, err error) {
				var te *transport.Error
				if !errors.As(err, &te) || te.Kind != transport.KindHTTP || te.StatusCode != http.StatusServiceUnavailable {
					t.Errorf("error = %v, want HTTP 503", err)
				}
			},
		},
		{
			name: "empty error status",
			respond: func(w http.ResponseWriter, req *soap.Message) {
				w.WriteHeader(http.StatusNotFound)
			},
			check: func(t *testing.T, msg *soap.Message, err error) {
				if !errors.Is(err, transport.ErrUnreachable) {
					t.Errorf("error = %v, want ErrUnreachable", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := device(t, func(w http.ResponseWriter, req *soap.Message, raw string) {
				tt.respond(w, req)
			})
			msg, err := newClient().Call(context.Background(), []string{url}, soap.TemplateTransferGet, nil)
			if err == nil {
				t.Fatal("Call() error = nil")
			}
			tt.check(t, msg, err)
		})
	}
}

func TestCallRaw(t *testing.T) {
	url := device(t, func(w http.ResponseWriter, req *soap.Message, raw string) {
		w.Header().Set("Content-Type", "multipart/related; boundary=x")
		io.WriteString(w, "--x--")
	})

	resp, err := newClient().CallRaw(context.Background(), []string{url}, soap.TemplateTransferGet, nil)
	if err != nil {
		t.Fatalf("CallRaw() error = %v", err)
	}
	if !strings.HasPrefix(resp.ContentType, "multipart/related") || string(resp.Body) != "--x--" {
		t.Errorf("response = %+v", resp)
	}
}
