package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/exchange"
)

const (
	// StreamBaseURL is the production futures user-data stream endpoint.
	StreamBaseURL = "wss://fstream.binance.com/ws"
	// StreamTestnetURL is the testnet endpoint.
	StreamTestnetURL = "wss://stream.binancefuture.com/ws"

	keepAliveInterval = 30 * time.Minute
	rotateInterval    = 24 * time.Hour

	defaultPingInterval = 3 * time.Minute
	defaultPongTimeout  = 10 * time.Minute

	reconnectBase        = 2 * time.Second
	reconnectMax         = 10 * time.Minute
	defaultMaxReconnects = 10
)

// StreamOptions carries the configurable connection knobs. Zero values fall
// back to the defaults above.
type StreamOptions struct {
	PingInterval  time.Duration
	PongTimeout   time.Duration
	MaxReconnects int
}

// OrderUpdate is one ORDER_TRADE_UPDATE event from the user-data stream.
type OrderUpdate struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
	Side          string
	OrderType     string
	ExecutionType string
	OrderStatus   string
	OrigQty       float64
	FilledQty     float64
	AvgPrice      float64
	LastPrice     float64
	StopPrice     float64
	RealizedPnl   float64
	ReduceOnly    bool
	EventTime     time.Time
	Raw           json.RawMessage
}

// UserDataStream maintains the websocket connection to the account event
// stream, keeps the listen key alive, and hands order updates to a handler.
// Handler calls are sequential per connection; slow handlers should buffer.
type UserDataStream struct {
	client  exchange.StreamClient
	wsURL   string
	handler func(OrderUpdate)
	logger  zerolog.Logger

	pingInterval  time.Duration
	pongTimeout   time.Duration
	maxReconnects int

	mu         sync.Mutex
	running    bool
	connected  bool
	lastEvent  time.Time
	reconnects int
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewUserDataStream creates a stream bound to one venue account. handler
// receives every ORDER_TRADE_UPDATE; other event types are logged and
// dropped.
func NewUserDataStream(client exchange.StreamClient, testnet bool, opts StreamOptions, handler func(OrderUpdate), logger zerolog.Logger) *UserDataStream {
	wsURL := StreamBaseURL
	if testnet {
		wsURL = StreamTestnetURL
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	return &UserDataStream{
		client:        client,
		wsURL:         wsURL,
		handler:       handler,
		logger:        logger.With().Str("component", "user_data_stream").Logger(),
		pingInterval:  opts.PingInterval,
		pongTimeout:   opts.PongTimeout,
		maxReconnects: opts.MaxReconnects,
	}
}

// Start launches the connection loop.
func (s *UserDataStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// Stop closes the connection and waits for the loop to exit.
func (s *UserDataStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

// Status reports connection state for the health endpoint.
func (s *UserDataStream) Status() (connected bool, lastEvent time.Time, reconnects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.lastEvent, s.reconnects
}

func (s *UserDataStream) run() {
	defer s.wg.Done()

	attempts := 0
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		err := s.connectAndRead()
		if err == nil {
			// Clean rotation or shutdown.
			select {
			case <-s.stopCh:
				return
			default:
				attempts = 0
				continue
			}
		}

		attempts++
		s.mu.Lock()
		s.reconnects++
		s.connected = false
		s.mu.Unlock()

		if attempts > s.maxReconnects {
			s.logger.Error().Int("attempts", attempts).
				Msg("reconnect attempts exhausted, stream halted")
			return
		}

		delay := reconnectBase * time.Duration(1<<uint(attempts-1))
		if delay > reconnectMax {
			delay = reconnectMax
		}
		delay += time.Duration(rand.Int63n(int64(delay) / 4))
		s.logger.Warn().Err(err).Int("attempt", attempts).Dur("delay", delay).
			Msg("stream disconnected, reconnecting")

		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		}
	}
}

// connectAndRead holds one websocket session: dial, keepalive, read until
// rotation, error, or shutdown. A nil return means the session ended
// deliberately.
func (s *UserDataStream) connectAndRead() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	listenKey, err := s.client.GetListenKey(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("obtaining listen key: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL+"/"+listenKey, nil)
	if err != nil {
		return fmt.Errorf("dialing stream: %w", err)
	}
	defer conn.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.client.CloseListenKey(ctx, listenKey); err != nil {
			s.logger.Debug().Err(err).Msg("closing listen key")
		}
	}()

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.logger.Info().Msg("user data stream connected")

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	})

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	rotate := time.NewTimer(rotateInterval)
	defer rotate.Stop()

	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			s.dispatch(msg)
		}
	}()

	for {
		select {
		case <-s.stopCh:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case <-rotate.C:
			// Listen keys expire after 24h even with keepalives; rotate
			// proactively with a fresh key.
			s.logger.Info().Msg("rotating listen key")
			return nil

		case <-keepAlive.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			err := s.client.KeepAliveListenKey(ctx, listenKey)
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Msg("listen key keepalive failed")
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

		case err := <-readErr:
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

func (s *UserDataStream) dispatch(msg []byte) {
	var head struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		s.logger.Debug().Err(err).Msg("undecodable stream message")
		return
	}

	s.mu.Lock()
	s.lastEvent = time.Now()
	s.mu.Unlock()

	switch head.EventType {
	case "ORDER_TRADE_UPDATE":
		var ev orderTradeUpdateEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("undecodable order update")
			return
		}
		if s.handler != nil {
			s.handler(ev.toOrderUpdate(msg, head.EventTime))
		}
	case "listenKeyExpired":
		s.logger.Warn().Msg("listen key expired event received")
	case "ACCOUNT_UPDATE", "MARGIN_CALL", "ACCOUNT_CONFIG_UPDATE":
		// Position and balance state come from the periodic sync loops.
	default:
		s.logger.Debug().Str("event", head.EventType).Msg("ignoring stream event")
	}
}

type orderTradeUpdateEvent struct {
	Order struct {
		Symbol        string  `json:"s"`
		ClientOrderID string  `json:"c"`
		Side          string  `json:"S"`
		OrderType     string  `json:"o"`
		OrigQty       float64 `json:"q,string"`
		StopPrice     float64 `json:"sp,string"`
		ExecutionType string  `json:"x"`
		OrderStatus   string  `json:"X"`
		OrderID       int64   `json:"i"`
		FilledQty     float64 `json:"z,string"`
		LastPrice     float64 `json:"L,string"`
		AvgPrice      float64 `json:"ap,string"`
		RealizedPnl   float64 `json:"rp,string"`
		ReduceOnly    bool    `json:"R"`
	} `json:"o"`
}

func (ev *orderTradeUpdateEvent) toOrderUpdate(raw []byte, eventTime int64) OrderUpdate {
	o := ev.Order
	return OrderUpdate{
		Symbol:        o.Symbol,
		OrderID:       formatOrderID(o.OrderID),
		ClientOrderID: o.ClientOrderID,
		Side:          o.Side,
		OrderType:     o.OrderType,
		ExecutionType: o.ExecutionType,
		OrderStatus:   o.OrderStatus,
		OrigQty:       o.OrigQty,
		FilledQty:     o.FilledQty,
		AvgPrice:      o.AvgPrice,
		LastPrice:     o.LastPrice,
		StopPrice:     o.StopPrice,
		RealizedPnl:   o.RealizedPnl,
		ReduceOnly:    o.ReduceOnly,
		EventTime:     time.UnixMilli(eventTime),
		Raw:           json.RawMessage(raw),
	}
}
