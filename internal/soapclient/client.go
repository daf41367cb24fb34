// Package soapclient sends request/response SOAP operations to WSD
// services over HTTP.
package soapclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/transport"
)

// Client builds requests from templates, posts them and parses the reply.
type Client struct {
	// HTTP carries the requests
	HTTP *transport.Client

	// From is the endpoint address of this client, sent in wsa:From
	From string

	log *zap.Logger
}

// New creates a client identifying itself as from
func New(http *transport.Client, from string) *Client {
	return &Client{
		HTTP: http,
		From: from,
		log:  logging.Named("soap"),
	}
}

// Call renders tmpl, posts it to the first address that answers and
// returns the parsed reply. A SOAP fault is returned as a *soap.Fault
// error together with the parsed message.
func (c *Client) Call(ctx context.Context, addrs []string, tmpl soap.Template, fields soap.Fields) (*soap.Message, error) {
	req, resp, err := c.post(ctx, addrs, tmpl, fields)
	if err != nil {
		return nil, err
	}
	return c.parse(req, resp)
}

// CallRaw is Call for replies that are not a plain SOAP envelope, such
// as multipart image transfers.
func (c *Client) CallRaw(ctx context.Context, addrs []string, tmpl soap.Template, fields soap.Fields) (*transport.Response, error) {
	_, resp, err := c.post(ctx, addrs, tmpl, fields)
	return resp, err
}

func (c *Client) post(ctx context.Context, addrs []string, tmpl soap.Template, fields soap.Fields) (*soap.Request, *transport.Response, error) {
	f := make(soap.Fields, len(fields)+1)
	for k, v := range fields {
		f[k] = v
	}
	if f["From"] == "" {
		f["From"] = c.From
	}

	req, err := soap.Build(tmpl, f)
	if err != nil {
		return nil, nil, err
	}

	resp, addr, err := c.HTTP.PostAny(ctx, addrs, req.Body)
	if err != nil {
		return nil, nil, err
	}
	c.log.Debug("Reply", zap.String("template", string(tmpl)), zap.String("addr", addr), zap.Int("status", resp.StatusCode))
	return req, resp, nil
}

// parse decodes a reply to req. Replies that name another request in
// RelatesTo are rejected.
func (c *Client) parse(req *soap.Request, resp *transport.Response) (*soap.Message, error) {
	msg, err := soap.Parse(resp.Body)
	if err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, transport.NewHTTPError("", resp.StatusCode)
		}
		return nil, err
	}
	if f := msg.Fault(); f != nil {
		return msg, f
	}
	if resp.StatusCode/100 != 2 {
		return nil, transport.NewHTTPError("", resp.StatusCode)
	}
	if msg.Header.RelatesTo != "" && msg.Header.RelatesTo != req.MessageID {
		return nil, fmt.Errorf("%w: reply relates to %s, want %s", soap.ErrMalformed, msg.Header.RelatesTo, req.MessageID)
	}
	return msg, nil
}
