package irrigkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const httpTimeoutsMs = 3000

// ChannelStatus is one entry of GET /channels.
type ChannelStatus struct {
	Channel  int    `json:"channel"`
	Inbound  string `json:"inbound"`
	Outbound string `json:"outbound"`
	State    bool   `json:"state"`
	Label    string `json:"label"`
}

// StatusServer serves the channel list, manual control and metrics over HTTP.
type StatusServer struct {
	Addr  string
	Token string

	controller *Controller
	registry   *prometheus.Registry
	server     *http.Server
	logger     *log.Logger

	serverErr chan error
}

func NewStatusServer(addr string, controller *Controller, registry *prometheus.Registry) *StatusServer {
	return &StatusServer{
		Addr:       addr,
		controller: controller,
		registry:   registry,
		serverErr:  make(chan error, 1),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "StatusServer: ",
			Level:  log.GetLevel(),
		}),
	}
}

func (ss *StatusServer) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/channels", ss.handleChannels)
	router.PUT("/channels/:channel/:payload", ss.handleControl)
	if ss.registry != nil {
		router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(ss.registry, promhttp.HandlerOpts{}))
	}
	return router
}

func (ss *StatusServer) authorized(r *http.Request) bool {
	if len(ss.Token) == 0 {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Token"), ss.Token)
}

func (ss *StatusServer) handleChannels(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	statuses := []ChannelStatus{}
	for _, ch := range ss.controller.Store().Channels() {
		statuses = append(statuses, ChannelStatus{
			Channel:  ch.Index,
			Inbound:  ch.InboundTopic,
			Outbound: ch.OutboundTopic,
			State:    ch.State,
			Label:    StateLabel(ch.State),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(statuses)
	if err != nil {
		ss.logger.Error("failed to encode channels", "err", err)
	}
}

func (ss *StatusServer) handleControl(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !ss.authorized(r) {
		http.Error(w, "token mismatch", http.StatusUnauthorized)
		return
	}

	channel, err := strconv.Atoi(p.ByName("channel"))
	if err != nil || !validChannel(channel) {
		http.Error(w, fmt.Sprintf("unknown channel %s", p.ByName("channel")), http.StatusNotFound)
		return
	}
	payload := []byte(p.ByName("payload"))
	_, err = ParsePayload(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = ss.controller.Deliver(r.Context(), ControlMessage{
		Topic:   fmt.Sprintf(inboundTopicPattern, channel),
		Payload: payload,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (ss *StatusServer) Start() {
	httpTimeout := httpTimeoutsMs * time.Millisecond

	ss.server = &http.Server{
		Addr:              ss.Addr,
		Handler:           ss.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	go func() {
		ss.logger.Info("listening", "addr", ss.Addr)
		err := ss.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			ss.logger.Error("http server failed", "err", err)
		}
		ss.serverErr <- err
	}()
}

// Err delivers the result of ListenAndServe once the server stopped;
// http.ErrServerClosed after Close.
func (ss *StatusServer) Err() <-chan error {
	return ss.serverErr
}

func (ss *StatusServer) Close() error {
	if ss.server == nil {
		return nil
	}
	return ss.server.Close()
}
