package server

import (
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/treekv/treekv/log"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
)

const statsAPI = "/api/v1/stats"

type statusHandler struct {
	svr *Server
	rd  *render.Render
}

func (h *statusHandler) status(w http.ResponseWriter, r *http.Request) {
	if h.svr.ShuttingDown() {
		h.rd.JSON(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	h.rd.JSON(w, http.StatusOK, "ok")
}

func (h *statusHandler) stats(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, h.svr.Stats())
}

func newStatusRouter(svr *Server) http.Handler {
	rd := render.New(render.Options{
		IndentJSON: true,
	})
	h := &statusHandler{svr: svr, rd: rd}

	router := mux.NewRouter()
	router.HandleFunc("/status", h.status).Methods("GET")
	router.HandleFunc(statsAPI, h.stats).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(router)
	return n
}

func (s *Server) startStatusServer() error {
	l, err := net.Listen("tcp", s.conf.StatusAddr)
	if err != nil {
		return errors.Annotatef(err, "cannot listen on status address %s", s.conf.StatusAddr)
	}
	s.statusListener = l
	s.statusServer = &http.Server{Handler: newStatusRouter(s)}
	go func() {
		log.Infof("status server listening on %s", l.Addr())
		if err := s.statusServer.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("status server on %s failed: %v", l.Addr(), err)
		}
	}()
	return nil
}

// StatusAddr is the address of the status server, or "" if it is not running.
func (s *Server) StatusAddr() string {
	if s.statusListener == nil {
		return ""
	}
	return s.statusListener.Addr().String()
}
