package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	validator "gopkg.in/go-playground/validator.v9"
)

// WriteError writes a JSON response for the passed in error
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, err error) error {
	errors := []string{err.Error()}

	vErrs, isValidation := err.(validator.ValidationErrors)
	if isValidation {
		errors = []string{}
		for i := range vErrs {
			errors = append(errors, fmt.Sprintf("field '%s' %s", strings.ToLower(vErrs[i].Field()), vErrs[i].Tag()))
		}
	}

	slog.Info("request error", "comp", "server", "url", r.URL.Path, "resp_status", statusCode, "error", err)
	return writeJSONResponse(w, statusCode, &errorResponse{errors})
}

// WriteIgnored writes a JSON response indicating that we ignored the request
func WriteIgnored(w http.ResponseWriter, r *http.Request, message string) error {
	slog.Debug("request ignored", "comp", "server", "url", r.URL.Path, "message", message)
	return writeData(w, http.StatusOK, "Ignored", []*EventData{{Status: EventStatusIgnored, Reason: message}})
}

// WriteEventsHandled writes a JSON response describing what happened to each event in a request
func WriteEventsHandled(w http.ResponseWriter, r *http.Request, data []*EventData) error {
	return writeData(w, http.StatusOK, "Events Handled", data)
}

// EventStatus is what happened to an event we received
type EventStatus string

const (
	EventStatusAccepted  EventStatus = "accepted"
	EventStatusDuplicate EventStatus = "duplicate"
	EventStatusIgnored   EventStatus = "ignored"
)

// EventData is the response data for a single received event
type EventData struct {
	MsgID     string      `json:"msg_id,omitempty"`
	ContactID ContactID   `json:"contact_id,omitempty"`
	Status    EventStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
}

type errorResponse struct {
	Text []string `json:"errors"`
}

type successResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(response)
}

func writeData(w http.ResponseWriter, statusCode int, message string, response any) error {
	return writeJSONResponse(w, statusCode, &successResponse{message, response})
}
