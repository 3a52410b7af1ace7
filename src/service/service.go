// Package service exposes the state of a running node over HTTP.
package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/mosaicnetworks/matchmaker/src/node"
	"github.com/sirupsen/logrus"
)

// Node is the part of node.Node the Service reads.
type Node interface {
	GetStats() map[string]string
	GetPeers() []node.PeerInfo
}

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	router      *mux.Router
	logger      *logrus.Entry
}

// NewService registers the handlers on a private router. metrics may be
// nil, in which case /metrics is not served.
func NewService(bindAddress string, n Node, metrics http.Handler, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers(metrics)

	return &service
}

func (s *Service) registerHandlers(metrics http.Handler) {
	s.logger.Debug("Registering API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/peers", s.makeHandler(s.GetPeers)).Methods("GET")
	s.router.HandleFunc("/peers/{id:[0-9]+}", s.makeHandler(s.GetPeer)).Methods("GET")
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods("GET")
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler ...
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.router)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	peers := s.node.GetPeers()
	if peers == nil {
		peers = []node.PeerInfo{}
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(peers)
}

// GetPeer ...
func (s *Service) GetPeer(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["id"]

	id, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing id parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	for _, p := range s.node.GetPeers() {
		if p.ID == id {
			w.Header().Set("Content-Type", "application/json")

			json.NewEncoder(w).Encode(p)

			return
		}
	}

	http.Error(w, fmt.Sprintf("peer %d is not connected", id), http.StatusNotFound)
}
