package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"carematch/internal/availability/cache"
	availservice "carematch/internal/availability/service"
	availstore "carematch/internal/availability/store"
	"carematch/internal/consult/service"
	"carematch/internal/consult/store"
	"carematch/internal/directory"
	"carematch/pkg/platform/middleware/identity"
)

type HandlerSuite struct {
	suite.Suite
	users  *directory.InMemory
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.users = directory.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := availservice.New(
		availstore.NewInMemory(),
		cache.NewInMemory(30*time.Second),
		s.users,
		availservice.WithLogger(logger),
	)
	lifecycle := service.New(store.NewInMemory(), registry, s.users,
		service.WithLogger(logger))

	r := chi.NewRouter()
	r.Use(identity.Middleware)
	New(lifecycle, logger).Register(r)
	s.router = r

	s.users.AddPatient("alice")
	s.users.AddVerifiedDoctor("drady")
	s.Require().NoError(registry.SetAvailability(context.Background(), "drady", true, []string{"Cardiology"}))
}

func (s *HandlerSuite) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set(identity.HeaderUsername, actor)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createRequest() map[string]any {
	rec := s.do(http.MethodPost, "/patients/alice/requests", "alice", CreateRequestBody{
		Category:             "cardiology",
		Description:          "chest pain on exertion",
		PreferredSpecialties: []string{"Cardiology"},
		Urgency:              "high",
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var request map[string]any
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&request))
	return request
}

func (s *HandlerSuite) TestCreateRequest() {
	s.Run("assigns the online doctor", func() {
		request := s.createRequest()
		s.Equal("assigned", request["status"])
		s.Equal("drady", request["assigned_doctor_username"])
		s.NotEmpty(request["id"])
	})

	s.Run("unknown category maps to 400", func() {
		rec := s.do(http.MethodPost, "/patients/alice/requests", "alice",
			CreateRequestBody{Category: "phrenology"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown patient maps to 404", func() {
		rec := s.do(http.MethodPost, "/patients/nobody/requests", "nobody",
			CreateRequestBody{Category: "general"})
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestGetRequest() {
	created := s.createRequest()
	id, _ := created["id"].(string)

	rec := s.do(http.MethodGet, "/requests/"+id, "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var request map[string]any
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&request))
	s.Equal(id, request["id"])

	rec = s.do(http.MethodGet, "/requests/missing", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestListEndpoints() {
	s.createRequest()

	rec := s.do(http.MethodGet, "/patients/alice/requests", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var byPatient struct {
		Requests []json.RawMessage `json:"requests"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&byPatient))
	s.Len(byPatient.Requests, 1)

	rec = s.do(http.MethodGet, "/doctors/drady/requests", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var byDoctor struct {
		Requests []json.RawMessage `json:"requests"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&byDoctor))
	s.Len(byDoctor.Requests, 1)
}

func (s *HandlerSuite) TestUpdateStatus() {
	created := s.createRequest()
	id, _ := created["id"].(string)

	s.Run("missing actor header maps to 400", func() {
		rec := s.do(http.MethodPost, "/requests/"+id+"/status", "",
			UpdateStatusBody{Status: "accepted"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("doctor accepts the request", func() {
		rec := s.do(http.MethodPost, "/requests/"+id+"/status", "drady",
			UpdateStatusBody{Status: "accepted"})
		s.Require().Equal(http.StatusOK, rec.Code)

		var request map[string]any
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&request))
		s.Equal("accepted", request["status"])
	})

	s.Run("illegal transition maps to 400", func() {
		rec := s.do(http.MethodPost, "/requests/"+id+"/status", "drady",
			UpdateStatusBody{Status: "pending"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestAddNote() {
	created := s.createRequest()
	id, _ := created["id"].(string)

	rec := s.do(http.MethodPost, "/requests/"+id+"/notes", "drady",
		AddNoteBody{Content: "ordered an ECG"})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/requests/"+id+"/notes", "drady", AddNoteBody{})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReassign() {
	created := s.createRequest()
	id, _ := created["id"].(string)

	s.Run("missing target doctor maps to 400", func() {
		rec := s.do(http.MethodPost, "/requests/"+id+"/reassign", "alice", ReassignBody{})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown target doctor maps to 404", func() {
		rec := s.do(http.MethodPost, "/requests/"+id+"/reassign", "alice",
			ReassignBody{NewDoctor: "ghost"})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("same doctor maps to 409", func() {
		rec := s.do(http.MethodPost, "/requests/"+id+"/reassign", "alice",
			ReassignBody{NewDoctor: "drady"})
		s.Equal(http.StatusConflict, rec.Code)
	})
}
