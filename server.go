package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"github.com/zowobo/relay/utils"
)

const (
	signatureHeader = "X-Hub-Signature-256"

	maxRequestBodyBytes int64 = 1024 * 1024
)

var splash = `
            _
  _ __ ___ | | __ _ _   _
 | '__/ _ \| |/ _' | | | |
 | | |  __/| | (_| | |_| |
 |_|  \___||_|\__,_|\__, |
                    |___/
`

// EventSubmitter accepts events to be handled in the background
type EventSubmitter interface {
	Submit(*Event) error
}

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
	decoder.SetAliasTag("name")
}

// Server is the HTTP surface of the relay, receiving webhooks from WhatsApp
type Server struct {
	config    *Config
	submitter EventSubmitter
	parser    EventParser
	seen      SeenTracker
	store     ThreadStore

	router     *chi.Mux
	httpServer *http.Server
	waitGroup  sync.WaitGroup
	startedOn  time.Time
}

// NewServer creates a new server. It will have to be started afterwards.
func NewServer(config *Config, submitter EventSubmitter, parser EventParser, seen SeenTracker, store ThreadStore) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	s := &Server{
		config:    config,
		submitter: submitter,
		parser:    parser,
		seen:      seen,
		store:     store,
		router:    router,
	}

	router.NotFound(s.handle404)
	router.MethodNotAllowed(s.handle405)
	router.Get("/", s.handleIndex)
	router.Get("/status", s.handleStatus)
	router.Get("/webhook", s.handleVerify)
	router.Post("/webhook", s.handleReceive)

	return s
}

// Router returns the handler for all our routes
func (s *Server) Router() http.Handler { return s.router }

// Start starts the server listening for incoming requests
func (s *Server) Start() error {
	utils.HTTPUserAgent = fmt.Sprintf("Relay/%s", s.config.Version)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.startedOn = time.Now()

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("error listening", "comp", "server", "state", "stopping", "error", err)
		}
	}()

	slog.Info("server listening", "comp", "server", "port", s.config.Port, "state", "started", "version", s.config.Version)
	return nil
}

// Stop stops the server, returning only after the listener has stopped. Submitted events may still be
// in progress.
func (s *Server) Stop() error {
	log := slog.With("comp", "server")
	log.Info("stopping server", "state", "stopping")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("error shutting down server", "state", "stopping", "error", err)
	}

	s.waitGroup.Wait()

	log.Info("server stopped", "state", "stopped")
	return nil
}

// Meta sends hub.mode, hub.verify_token and hub.challenge which the decoder treats as a nested struct
type verifyForm struct {
	Hub struct {
		Mode        string `name:"mode"`
		VerifyToken string `name:"verify_token"`
		Challenge   string `name:"challenge"`
	} `name:"hub"`
}

// handles Meta's webhook verification callback
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	form := &verifyForm{}
	if err := decoder.Decode(form, r.URL.Query()); err != nil {
		WriteError(w, r, http.StatusBadRequest, err)
		return
	}

	// this isn't a subscribe verification, that's an error
	if form.Hub.Mode != "subscribe" {
		WriteError(w, r, http.StatusBadRequest, errors.New("unknown request"))
		return
	}

	// verify the token against our verify token, if the same return the challenge Meta sent us
	if !utils.SecretEqual(form.Hub.VerifyToken, s.config.WhatsappVerifyToken) {
		WriteError(w, r, http.StatusForbidden, errors.New("token does not match secret"))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, form.Hub.Challenge)
}

// handles incoming notifications, acknowledging them as soon as they are queued
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	log := slog.With("comp", "server", "request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxRequestBodyBytes))
		} else {
			WriteError(w, r, http.StatusBadRequest, fmt.Errorf("unable to read request body: %w", err))
		}
		return
	}

	if s.config.WhatsappAppSecret != "" {
		if err := validateSignature(s.config.WhatsappAppSecret, r.Header.Get(signatureHeader), body); err != nil {
			WriteError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	events, err := s.parser.ParseEvents(body)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			WriteIgnored(w, r, verr.Error())
		} else {
			WriteError(w, r, http.StatusBadRequest, err)
		}
		return
	}

	data := make([]*EventData, 0, len(events))

	for _, event := range events {
		d := &EventData{MsgID: event.ID, ContactID: event.ContactID, Status: EventStatusAccepted}
		data = append(data, d)

		if err := event.Validate(); err != nil {
			d.Status, d.Reason = EventStatusIgnored, err.Error()
			log.Info("ignoring event", "contact", event.ContactID, "msg_id", event.ID, "reason", err)
			continue
		}

		dupe, err := s.seen.MarkSeen(r.Context(), event.ID)
		if err != nil {
			// dedupe is best effort so carry on
			log.Error("error checking for duplicate", "msg_id", event.ID, "error", err)
		} else if dupe {
			d.Status = EventStatusDuplicate
			log.Info("ignoring duplicate event", "contact", event.ContactID, "msg_id", event.ID)
			continue
		}

		if err := s.submitter.Submit(event); err != nil {
			d.Status, d.Reason = EventStatusIgnored, err.Error()
			continue
		}

		log.Info("event accepted", "contact", event.ContactID, "msg_id", event.ID, "type", event.Type)
	}

	WriteEventsHandled(w, r, data)
}

func validateSignature(appSecret, header string, body []byte) error {
	if header == "" {
		return errors.New("missing request signature")
	}

	signature := ""
	if len(header) == 71 && strings.HasPrefix(header, "sha256=") {
		signature = strings.TrimPrefix(header, "sha256=")
	}

	// compare signatures in way that isn't sensitive to a timing attack
	if !utils.SecretEqual(utils.SignHMAC256(appSecret, body), signature) {
		return errors.New("invalid request signature")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	buf.WriteString("<title>relay</title><body><pre>\n")
	buf.WriteString(splash)
	buf.WriteString(s.config.Version)
	buf.WriteString("\n\n")
	buf.WriteString("GET  /webhook\nPOST /webhook\nGET  /status\n")
	buf.WriteString("</pre></body>")
	w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.config.StatusUsername != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.config.StatusUsername || !utils.SecretEqual(pass, s.config.StatusPassword) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Authenticate"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorised.\n"))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	statusCode := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		status = fmt.Sprintf("thread store unreachable: %s", err)
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, map[string]any{
		"version":      s.config.Version,
		"thread_store": s.config.ThreadStore,
		"status":       status,
		"uptime":       time.Since(s.startedOn).Round(time.Second).String(),
	})
}

func (s *Server) handle404(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, fmt.Errorf("not found: %s", r.URL.String()))
}

func (s *Server) handle405(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed: %s", r.Method))
}
