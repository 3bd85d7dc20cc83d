package iothub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	"github.com/omnect/twin-agent/pkg/internal/logfields"
	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/omnect/twin-agent/pkg/twin"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

// SDKVersion describes the hub client stack.
const SDKVersion = "paho.mqtt.golang/1.4.3 api-version/" + apiVersion

const (
	qosAtLeastOnce = 1

	keepAlive        = 4 * time.Minute
	connectRetryTime = 5 * time.Minute
	signTimeout      = 30 * time.Second
	// expirySlack treats a connection lost shortly before the token expires
	// as an expiry.
	expirySlack  = 30 * time.Second
	disconnectMs = 250
)

var errShutdown = errors.New("client shut down")

// mqttClient is the part of the paho client in use.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token
}

// Client is a twin.Client speaking MQTT to the hub.
type Client struct {
	log           logging.Logger
	identity      Identity
	tokenLifetime time.Duration
	notifications twin.Notifications
	pending       *pendingRequests
	mqtt          mqttClient

	done         chan struct{}
	disconnected chan struct{}
	closeOnce    sync.Once

	mu      sync.Mutex
	expiry  time.Time
	signErr error
}

var _ twin.Client = (*Client)(nil)

// Connector resolves the identity source and connects when the twin starts.
type Connector struct {
	log           logging.Logger
	source        Source
	tokenLifetime time.Duration
}

var _ twin.Connector = (*Connector)(nil)

func NewConnector(log logging.Logger, source Source, tokenLifetime time.Duration) *Connector {
	return &Connector{log: log, source: source, tokenLifetime: tokenLifetime}
}

// Connect returns once the identity is known, the connection itself is
// reported on the notifications.
func (c *Connector) Connect(ctx context.Context, n twin.Notifications) (twin.Client, error) {
	c.log.WithField("source", c.source.Kind.String()).Info("resolving hub identity")
	id, err := c.source.Identity(ctx, c.log)
	if err != nil {
		return nil, err
	}
	client := newClient(c.log, id, c.tokenLifetime, n)
	client.mqtt = mqtt.NewClient(client.options())
	go client.connect()
	return client, nil
}

func newClient(log logging.Logger, id Identity, tokenLifetime time.Duration, n twin.Notifications) *Client {
	return &Client{
		log:           log.WithField(logging.SubComponentField, "iothub"),
		identity:      id,
		tokenLifetime: tokenLifetime,
		notifications: n,
		pending:       newPendingRequests(),
		done:          make(chan struct{}),
		disconnected:  make(chan struct{}),
	}
}

func (c *Client) options() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(c.identity.broker()).
		SetClientID(c.identity.clientID()).
		SetCredentialsProvider(c.credentials).
		SetTLSConfig(&tls.Config{RootCAs: c.identity.RootCAs, MinVersion: tls.VersionTLS12}).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
}

// credentials issues a fresh SAS token for every connection attempt.
func (c *Client) credentials() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), signTimeout)
	defer cancel()

	expiry := time.Now().Add(c.tokenLifetime)
	token, err := SASToken(ctx, c.identity.Signer, c.identity.resource(), expiry)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signErr = err
	if err != nil {
		c.log.WithError(err).Error("cannot issue sas token")
		return c.identity.username(), ""
	}
	c.expiry = expiry
	return c.identity.username(), token
}

// signFailed reports whether the last attempt went out without a token.
func (c *Client) signFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signErr != nil
}

func (c *Client) tokenExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.expiry.IsZero() && !time.Now().Before(c.expiry.Add(-expirySlack))
}

// connect establishes the first connection, reconnects are left to paho.
func (c *Client) connect() {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectRetryTime

	for {
		err := c.connectOnce()
		if err == nil || err == errShutdown {
			return
		}
		reason := c.reason(err)
		if reason == twin.ReasonBadCredential {
			c.log.WithError(err).Error("hub refused the credentials")
			c.notifyState(twin.Unauthenticated(reason))
			return
		}
		next := policy.NextBackOff()
		if next == backoff.Stop {
			c.log.WithError(err).Error("giving up connecting to the hub")
			c.notifyState(twin.Unauthenticated(twin.ReasonRetryExpired))
			return
		}
		c.log.WithError(err).WithField("retry", next).Warn("cannot connect to the hub")
		select {
		case <-time.After(next):
		case <-c.done:
			return
		}
	}
}

func (c *Client) connectOnce() error {
	token := c.mqtt.Connect()
	select {
	case <-token.Done():
		return token.Error()
	case <-c.done:
		return errShutdown
	}
}

// reason classifies a failed or lost connection. A refusal of an attempt
// made without a token is not the credentials' fault.
func (c *Client) reason(err error) twin.UnauthenticatedReason {
	var netErr net.Error
	switch {
	case c.signFailed():
		return twin.ReasonCommunicationError
	case c.tokenExpired():
		return twin.ReasonExpiredSasToken
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword), errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return twin.ReasonBadCredential
	case err != nil && strings.Contains(err.Error(), "pingresp not received"):
		return twin.ReasonNoPingResponse
	case errors.As(err, &netErr):
		return twin.ReasonNoNetwork
	default:
		return twin.ReasonCommunicationError
	}
}

func (c *Client) onConnect(mqtt.Client) {
	c.log.WithField("broker", c.identity.broker()).Info("connected to hub")

	token := c.mqtt.SubscribeMultiple(map[string]byte{
		topicDesired:       qosAtLeastOnce,
		topicTwinResponses: qosAtLeastOnce,
		topicMethods:       qosAtLeastOnce,
	}, c.route)
	if err := c.wait(token); err != nil {
		c.log.WithError(err).Error("cannot subscribe to twin topics")
		c.notifyState(twin.Unauthenticated(twin.ReasonCommunicationError))
		return
	}
	c.notifyState(twin.Authenticated())
	if c.closed() {
		return
	}

	// The complete twin is requested on every connect as desired patches
	// may have been missed while disconnected.
	rid := uuid.NewString()
	c.pending.add(rid, requestTwinGet)
	if err := c.wait(c.mqtt.Publish(twinGetTopic(rid), qosAtLeastOnce, false, []byte{})); err != nil {
		c.log.WithError(err).Warn("cannot request twin")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	reason := c.reason(err)
	c.log.WithError(err).WithField("reason", reason.String()).Warn("connection to hub lost")
	c.notifyState(twin.Unauthenticated(reason))
}

func (c *Client) wait(token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-c.done:
		return errShutdown
	}
}

// route dispatches the messages of all subscriptions.
func (c *Client) route(_ mqtt.Client, msg mqtt.Message) {
	if c.closed() {
		return
	}
	topic := msg.Topic()
	switch {
	case strings.HasPrefix(topic, desiredPrefix):
		c.notifyDesired(twin.DesiredUpdate{Scope: twin.Partial, Payload: json.RawMessage(msg.Payload())})
	case strings.HasPrefix(topic, twinResponsePrefix):
		c.handleTwinResponse(topic, msg.Payload())
	case strings.HasPrefix(topic, methodRequestPrefix):
		c.handleMethodRequest(topic, msg.Payload())
	default:
		c.log.WithField("topic", topic).Debug("ignoring message")
	}
}

func (c *Client) handleTwinResponse(topic string, payload []byte) {
	resp, err := parseTwinResponse(topic)
	if err != nil {
		c.log.WithError(err).Warn("malformed twin response")
		return
	}
	kind, ok := c.pending.take(resp.rid)
	log := c.log.WithFields(logfields.Request(string(kind), resp.rid)).WithField("status", resp.status)
	if !ok {
		log.Debug("response to unknown request")
		return
	}

	switch {
	case resp.status/100 != 2:
		log.Warn("twin request failed")
	case kind == requestTwinGet:
		c.notifyDesired(twin.DesiredUpdate{Scope: twin.Complete, Payload: json.RawMessage(payload)})
	default:
		log.Debug("reported properties acknowledged")
	}
}

func (c *Client) handleMethodRequest(topic string, payload []byte) {
	req, err := parseMethodRequest(topic)
	if err != nil {
		c.log.WithError(err).Warn("malformed method request")
		return
	}
	if len(payload) == 0 {
		payload = []byte("null")
	}
	sink := twin.NewResultSink(c.done)
	c.notifyMethod(twin.MethodInvocation{
		Name:    req.name,
		Payload: json.RawMessage(payload),
		Result:  sink,
	})

	go func() {
		select {
		case result := <-sink.Result():
			c.respond(req, result)
		case <-c.done:
		}
	}()
}

func (c *Client) respond(req methodRequest, result twin.MethodResult) {
	status, payload := methodResponse(result)
	log := c.log.WithFields(logfields.Method(req.name)).WithField("status", status)
	if err := c.wait(c.mqtt.Publish(methodResponseTopic(status, req.rid), qosAtLeastOnce, false, payload)); err != nil {
		log.WithError(err).Warn("cannot respond to direct method")
		return
	}
	log.Debug("responded to direct method")
}

func methodResponse(result twin.MethodResult) (int, []byte) {
	if result.Err != nil {
		status := statusMethodFailed
		if _, ok := result.Err.(*twin.UnknownMethodError); ok {
			status = statusMethodNotFound
		}
		payload, err := sjson.SetBytes([]byte("{}"), "error", result.Err.Error())
		if err != nil {
			payload = []byte("{}")
		}
		return status, payload
	}
	if len(result.Payload) == 0 {
		return statusOK, []byte("{}")
	}
	return statusOK, result.Payload
}

// ReportProperties publishes the patch without waiting for the hub's
// acknowledgement; the response is matched by request id.
func (c *Client) ReportProperties(patch json.RawMessage) error {
	if c.closed() {
		return errShutdown
	}
	rid := uuid.NewString()
	c.pending.add(rid, requestReported)
	token := c.mqtt.Publish(reportedTopic(rid), qosAtLeastOnce, false, []byte(patch))
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.pending.take(rid)
			return errors.Wrap(err, "cannot publish reported properties")
		}
	default:
	}
	return nil
}

func (c *Client) SDKVersion() string {
	return SDKVersion
}

// Shutdown disconnects. Afterwards no notification is sent and pending
// method results are dropped.
func (c *Client) Shutdown(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() {
			c.mqtt.Disconnect(disconnectMs)
			c.pending.stop()
			close(c.disconnected)
		}()
	})
	select {
	case <-c.disconnected:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "disconnect from hub")
	}
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) notifyState(s twin.ConnectionState) {
	select {
	case c.notifications.ConnectionState <- s:
	case <-c.done:
	}
}

func (c *Client) notifyDesired(u twin.DesiredUpdate) {
	select {
	case c.notifications.Desired <- u:
	case <-c.done:
	}
}

func (c *Client) notifyMethod(m twin.MethodInvocation) {
	select {
	case c.notifications.Methods <- m:
	case <-c.done:
	}
}
