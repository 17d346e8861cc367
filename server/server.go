// Package server is the annotation service. It stores datasets, items and
// annotations, serves the media files behind them, pushes item changes out on
// a realtime websocket channel, and proxies auto-annotate requests to a
// model-serving endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annolab/workview/pkg/inference"
	"github.com/annolab/workview/server/workviewdb"
	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log logs.Log
	DB  *workviewdb.WorkviewDB

	signalIn       chan os.Signal
	httpServer     *http.Server
	httpRouter     *httprouter.Router
	hub            *hub
	infer          *inference.Client
	mediaRoot      string
	maxAnnotations int64
}

func NewServer(configFile string) (*Server, error) {
	cfg := Config{}
	if cfgB, err := os.ReadFile(configFile); err != nil {
		return nil, err
	} else {
		if err := json.Unmarshal(cfgB, &cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", configFile, err)
		}
	}
	logger, err := logs.NewLog()
	if err != nil {
		return nil, err
	}
	db, err := workviewdb.NewWorkviewDB(logger, cfg.DB)
	if err != nil {
		return nil, err
	}
	if cfg.MediaRoot == "" {
		return nil, fmt.Errorf("'mediaRoot' must be configured")
	}
	s := &Server{
		Log:            logger,
		DB:             db,
		hub:            newHub(logger),
		mediaRoot:      cfg.MediaRoot,
		maxAnnotations: cfg.MaxAnnotationsPerDataset,
	}
	if cfg.Inference != nil {
		s.infer = inference.NewClient(logger, cfg.Inference.URL, cfg.Inference.Model)
	}
	s.setupHttpRoutes()
	return s, nil
}

// port example: ":8084"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		} else {
			// Shutdown() was called by somebody else, and closed signalIn.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	signal.Stop(s.signalIn)
	close(s.signalIn)
	s.hub.close()
	s.Log.Infof("Closing HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := s.httpServer.Shutdown(ctx)
	defer cancel()
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.Log.Close()
}
