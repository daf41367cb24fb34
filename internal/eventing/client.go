package eventing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
	"github.com/wsdtool/wsdtool/internal/soap"
	"github.com/wsdtool/wsdtool/internal/soapclient"
	"github.com/wsdtool/wsdtool/internal/transport"
	"github.com/wsdtool/wsdtool/internal/wsd"
)

// StatusKind tells the two successful GetStatus outcomes apart
type StatusKind int

const (
	// StatusExpires means the device reported an expiration
	StatusExpires StatusKind = iota + 1

	// StatusNoExpiration means the subscription is alive and never expires
	StatusNoExpiration
)

// Status is the result of GetStatus. A fault is returned as an error
// instead.
type Status struct {
	Kind    StatusKind
	Expires Expiration
}

// Client performs WS-Eventing operations
type Client struct {
	soap *soapclient.Client
	log  *zap.Logger
}

// NewClient creates an eventing client
func NewClient(c *soapclient.Client) *Client {
	return &Client{soap: c, log: logging.Named("eventing")}
}

type subscribeResponseXML struct {
	Manager struct {
		Address string `xml:"http://schemas.xmlsoap.org/ws/2004/08/addressing Address"`
	} `xml:"http://schemas.xmlsoap.org/ws/2004/08/eventing SubscriptionManager"`
	Expires string `xml:"http://schemas.xmlsoap.org/ws/2004/08/eventing Expires"`
}

// Subscribe asks svc to push events matching filterURI to notifyAddr. A
// zero exp requests no expiration.
func (c *Client) Subscribe(ctx context.Context, svc wsd.HostedService, filterURI, notifyAddr string, exp Expiration) (*Subscription, error) {
	msg, err := c.soap.Call(ctx, []string{svc.EpRefAddr}, soap.TemplateSubscribe, soap.Fields{
		"To":            svc.EpRefAddr,
		"NotifyAddr":    notifyAddr,
		"Expires":       exp.Wire(),
		"FilterDialect": soap.ActionFilterDialect,
		"Filter":        filterURI,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", svc.EpRefAddr, err)
	}

	sub, err := c.newSubscription(msg, svc, filterURI, notifyAddr)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", svc.EpRefAddr, err)
	}
	return sub, nil
}

// SubscribeScanAvailable registers this client as a scan destination
// shown as displayName on the device panel. It returns the destination
// token the device will quote when a scan is started there.
func (c *Client) SubscribeScanAvailable(ctx context.Context, svc wsd.HostedService, notifyAddr, displayName, clientContext string, exp Expiration) (*Subscription, string, error) {
	msg, err := c.soap.Call(ctx, []string{svc.EpRefAddr}, soap.TemplateScanAvailableSubscribe, soap.Fields{
		"To":            svc.EpRefAddr,
		"NotifyAddr":    notifyAddr,
		"Expires":       exp.Wire(),
		"DisplayName":   displayName,
		"ClientContext": clientContext,
	})
	if err != nil {
		return nil, "", fmt.Errorf("subscribe scan available to %s: %w", svc.EpRefAddr, err)
	}

	sub, err := c.newSubscription(msg, svc, wsd.ActionScanAvailable.URI(), notifyAddr)
	if err != nil {
		return nil, "", fmt.Errorf("subscribe scan available to %s: %w", svc.EpRefAddr, err)
	}

	token, err := msg.FindText(soap.NSScan, "DestinationToken")
	if err != nil {
		return nil, "", fmt.Errorf("subscribe scan available to %s: destination token: %w", svc.EpRefAddr, err)
	}
	return sub, token, nil
}

func (c *Client) newSubscription(msg *soap.Message, svc wsd.HostedService, filterURI, notifyAddr string) (*Subscription, error) {
	var resp subscribeResponseXML
	if err := msg.Find(soap.NSEventing, "SubscribeResponse", &resp); err != nil {
		return nil, err
	}

	id, err := msg.FindText(soap.NSEventing, "Identifier")
	if err != nil {
		return nil, fmt.Errorf("subscription identifier: %w", err)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty subscription identifier", soap.ErrMalformed)
	}

	exp, err := ParseExpiration(resp.Expires)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:          id,
		FilterURI:   filterURI,
		Service:     svc,
		NotifyAddr:  notifyAddr,
		ManagerAddr: resp.Manager.Address,
		expires:     exp,
		state:       StateSubscribed,
	}
	c.log.Info("Subscribed",
		zap.String("service", svc.EpRefAddr),
		zap.String("id", id),
		zap.Stringer("expires", exp))
	return sub, nil
}

// Renew extends sub. A zero exp asks for no expiration.
func (c *Client) Renew(ctx context.Context, sub *Subscription, exp Expiration) error {
	if err := sub.active(); err != nil {
		return err
	}

	msg, err := c.manage(ctx, sub, soap.TemplateRenew, soap.Fields{"Expires": exp.Wire()})
	if err != nil {
		return fmt.Errorf("renew %s: %w", sub.ID, err)
	}

	granted, err := msg.FindText(soap.NSEventing, "Expires")
	if err != nil && !errors.Is(err, soap.ErrNotFound) {
		return fmt.Errorf("renew %s: %w", sub.ID, err)
	}
	e, err := ParseExpiration(granted)
	if err != nil {
		return fmt.Errorf("renew %s: %w", sub.ID, err)
	}
	sub.setExpires(e)
	c.log.Debug("Renewed", zap.String("id", sub.ID), zap.Stringer("expires", e))
	return nil
}

// Unsubscribe ends sub on the device
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if err := sub.active(); err != nil {
		return err
	}

	if _, err := c.manage(ctx, sub, soap.TemplateUnsubscribe, nil); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.ID, err)
	}
	sub.setState(StateUnsubscribed)
	c.log.Info("Unsubscribed", zap.String("id", sub.ID))
	return nil
}

// GetStatus asks the device whether sub is still alive. A fault means the
// device no longer knows the subscription; it is returned as a
// *soap.Fault and sub becomes unsubscribed.
func (c *Client) GetStatus(ctx context.Context, sub *Subscription) (Status, error) {
	if err := sub.active(); err != nil {
		return Status{}, err
	}

	msg, err := c.manage(ctx, sub, soap.TemplateGetStatus, nil)
	if err != nil {
		if soap.IsFault(err) {
			sub.setState(StateUnsubscribed)
		}
		return Status{}, fmt.Errorf("get status %s: %w", sub.ID, err)
	}

	text, err := msg.FindText(soap.NSEventing, "Expires")
	if errors.Is(err, soap.ErrNotFound) || (err == nil && text == "") {
		return Status{Kind: StatusNoExpiration}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("get status %s: %w", sub.ID, err)
	}

	exp, err := ParseExpiration(text)
	if err != nil {
		return Status{}, fmt.Errorf("get status %s: %w", sub.ID, err)
	}
	sub.setExpires(exp)
	return Status{Kind: StatusExpires, Expires: exp}, nil
}

func (c *Client) manage(ctx context.Context, sub *Subscription, tmpl soap.Template, fields soap.Fields) (*soap.Message, error) {
	addrs := sub.addrs()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: subscription %s has no manager address", transport.ErrUnreachable, sub.ID)
	}

	// Each address gets its own rendering so that wsa:To names the
	// endpoint the request is actually sent to.
	var err error
	for _, addr := range addrs {
		f := soap.Fields{
			"To":             addr,
			"SubscriptionID": sub.ID,
		}
		for k, v := range fields {
			f[k] = v
		}

		var msg *soap.Message
		msg, err = c.soap.Call(ctx, []string{addr}, tmpl, f)
		if !errors.Is(err, transport.ErrUnreachable) {
			return msg, err
		}
		c.log.Debug("Subscription manager address failed", zap.String("addr", addr), zap.Error(err))
	}
	return nil, err
}
