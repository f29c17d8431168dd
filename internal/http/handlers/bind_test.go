package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/eventlyhq/evently/internal/http/handlers"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type bindTarget struct {
	Title string `json:"event_title" binding:"required"`
	Count int    `json:"count" binding:"omitempty,gt=0"`
	Email string `json:"email" binding:"omitempty,email"`
	Code  string `json:"code" binding:"omitempty,min=2,max=4"`
	Order string `json:"order" binding:"omitempty,oneof=asc desc"`
}

func bindRouter(maxBody int64) *gin.Engine {
	r := newEngine()

	if maxBody > 0 {
		r.Use(middlewares.MaxBodyBytes(maxBody))
	}

	r.POST("/bind", func(c *gin.Context) {
		var in bindTarget

		if !handlers.BindJSON(c, &in) {
			return
		}

		handlers.RespondData(c, http.StatusOK, in)
	})

	return r
}

func TestBindJSONMessages(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "empty body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantMsg:    "request body is required",
		},
		{
			name:       "truncated json",
			body:       `{"event_title":`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "request body is not valid JSON",
		},
		{
			name:       "wrong field type",
			body:       `{"event_title":"x","count":"three"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "count must be of type int",
		},
		{
			name:       "missing required field named by its json tag",
			body:       `{"count":2}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "event_title is required",
		},
		{
			name:       "failed numeric rule",
			body:       `{"event_title":"x","count":-1}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "count must be greater than 0",
		},
		{
			name:       "failed email rule",
			body:       `{"event_title":"x","email":"nope"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "email must be a valid email address",
		},
		{
			name:       "failed min rule",
			body:       `{"event_title":"x","code":"a"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "code must be at least 2",
		},
		{
			name:       "failed max rule",
			body:       `{"event_title":"x","code":"abcde"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "code must be at most 4",
		},
		{
			name:       "failed oneof rule",
			body:       `{"event_title":"x","order":"sideways"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "order must be one of asc, desc",
		},
		{
			name:       "valid payload",
			body:       `{"event_title":"x","count":3}`,
			wantStatus: http.StatusOK,
		},
	}

	r := bindRouter(0)

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			w := perform(t, r, http.MethodPost, "/bind", nil, tc.body)

			wantStatus(t, w, tc.wantStatus)

			if tc.wantMsg != "" {
				wantMessage(t, w, tc.wantMsg)
			}
		})
	}
}

func TestBindJSONBodyTooLarge(t *testing.T) {
	r := bindRouter(8)

	w := perform(t, r, http.MethodPost, "/bind", nil, `{"event_title":"a very long title indeed"}`)

	wantStatus(t, w, http.StatusRequestEntityTooLarge)
	wantMessage(t, w, "request body too large")
}

func TestBindJSONReportsFirstViolation(t *testing.T) {
	r := bindRouter(0)

	// every field violates; the first struct field wins
	w := perform(t, r, http.MethodPost, "/bind", nil, `{"count":-2,"email":"bad","order":"up"}`)

	wantStatus(t, w, http.StatusBadRequest)

	resp := unmarshalEnvelope(t, w)

	if !strings.HasPrefix(resp.Message, "event_title ") {
		t.Fatalf("message = %q, want it to start with the first field", resp.Message)
	}
}
