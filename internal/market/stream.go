package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CandleHandler receives closed candles from a live stream
type CandleHandler func(symbol string, interval Interval, candle Candle)

// Stream subscribes to a Binance kline WebSocket stream and delivers closed
// candles to a handler. Only closed candles are forwarded so a live session
// always advances on complete bars.
type Stream struct {
	mu sync.Mutex

	baseURL   string
	symbol    string
	interval  Interval
	handler   CandleHandler
	conn      *websocket.Conn
	stopChan  chan struct{}
	isRunning bool
	log       zerolog.Logger

	reconnects int
}

// NewStream creates a kline stream for one symbol and interval
func NewStream(baseURL, symbol string, interval Interval, handler CandleHandler, logger zerolog.Logger) *Stream {
	if baseURL == "" {
		baseURL = "wss://stream.binance.com:9443"
	}
	return &Stream{
		baseURL:  baseURL,
		symbol:   strings.ToUpper(symbol),
		interval: interval,
		handler:  handler,
		log:      logger.With().Str("component", "market_stream").Logger(),
	}
}

// klineEvent is the Binance kline stream payload
type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

// Start connects and begins delivering closed candles. It reconnects with
// backoff until Stop is called.
func (s *Stream) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("stream already running")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.run()
	return nil
}

// Stop closes the stream
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Stream) run() {
	backoff := time.Second

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		wsURL := fmt.Sprintf("%s/ws/%s@kline_%s",
			s.baseURL, strings.ToLower(s.symbol), s.interval)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			s.log.Error().Err(err).Str("url", wsURL).Msg("kline stream connect failed")
			select {
			case <-s.stopChan:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnects++
		s.mu.Unlock()

		s.log.Info().Str("symbol", s.symbol).Str("interval", string(s.interval)).Msg("kline stream connected")
		backoff = time.Second

		s.readLoop(conn)
		conn.Close()

		select {
		case <-s.stopChan:
			return
		default:
			s.log.Warn().Str("symbol", s.symbol).Msg("kline stream disconnected, reconnecting")
		}
	}
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.log.Error().Err(err).Msg("kline stream read error")
			return
		}

		var event klineEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.log.Warn().Err(err).Msg("kline stream: unparseable message")
			continue
		}

		if event.EventType != "kline" || !event.Kline.IsClosed {
			continue
		}

		candle := Candle{
			OpenTime:  event.Kline.OpenTime,
			Open:      parseFloat(event.Kline.Open),
			High:      parseFloat(event.Kline.High),
			Low:       parseFloat(event.Kline.Low),
			Close:     parseFloat(event.Kline.Close),
			Volume:    parseFloat(event.Kline.Volume),
			CloseTime: event.Kline.CloseTime,
		}

		if s.handler != nil {
			s.handler(event.Symbol, Interval(event.Kline.Interval), candle)
		}
	}
}
