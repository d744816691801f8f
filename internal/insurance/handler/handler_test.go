package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kiosk/internal/insurance/handler/mocks"
	"kiosk/internal/insurance/models"
	patientModels "kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/insurance-mocks.go -package=mocks Service,Syncer
type InsuranceHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	syncer  *mocks.MockSyncer
	router  chi.Router
}

func TestInsuranceHandlerSuite(t *testing.T) {
	suite.Run(t, new(InsuranceHandlerSuite))
}

func (s *InsuranceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.syncer = mocks.NewMockSyncer(ctrl)
	h := New(s.service, s.syncer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *InsuranceHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func card() *models.Insurance {
	return &models.Insurance{
		CitizenID:   "012345678901",
		InsuranceID: "0123456789",
		FullName:    "Nguyen Van A",
		Gender:      domain.GenderMale,
		DOB:         domain.NewDay(1990, time.May, 4),
		ValidFrom:   domain.NewDay(2026, time.January, 1),
		Expired:     domain.NewDay(2026, time.December, 31),
	}
}

const createBody = `{
	"citizen_id": "012345678901",
	"insurance_id": "0123456789",
	"full_name": "Nguyen Van A",
	"gender": "male",
	"dob": "1990-05-04",
	"valid_from": "2026-01-01",
	"expired": "2026-12-31"
}`

func (s *InsuranceHandlerSuite) TestCreate() {
	s.Run("creates and syncs the patient", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p models.Params) (*models.Insurance, error) {
				s.Equal(domain.CitizenID("012345678901"), p.CitizenID)
				s.True(p.Expired.Equal(domain.NewDay(2026, time.December, 31)))
				return card(), nil
			})
		s.syncer.EXPECT().Sync(gomock.Any(), domain.CitizenID("012345678901")).
			Return(&patientModels.Patient{IsInsurance: true}, nil)

		rec := s.do(http.MethodPost, "/insurance", createBody)
		s.Equal(http.StatusCreated, rec.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("0123456789", resp["insurance_id"])
		s.Equal("2026-12-31", resp["expired"])
		s.Equal(true, resp["patient_synced"])
	})

	s.Run("missing patient is not a failure", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).Return(card(), nil)
		s.syncer.EXPECT().Sync(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "patient not found"))

		rec := s.do(http.MethodPost, "/insurance", createBody)
		s.Equal(http.StatusCreated, rec.Code)
		s.Contains(rec.Body.String(), `"patient_synced":false`)
	})

	s.Run("duplicate is a conflict", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeConflict, "insurance already registered"))
		rec := s.do(http.MethodPost, "/insurance", createBody)
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("malformed insurance id never reaches the service", func() {
		body := strings.Replace(createBody, "0123456789", "12", 1)
		rec := s.do(http.MethodPost, "/insurance", body)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.do(http.MethodPost, "/insurance", `{"citizen_id":"012345678901","is_admin":true}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *InsuranceHandlerSuite) TestCheckValidity() {
	s.service.EXPECT().CheckValidity(gomock.Any(), domain.CitizenID("012345678901")).Return(&models.Validity{
		InsuranceID:     "0123456789",
		IsValid:         true,
		DaysUntilExpiry: 74,
		StatusText:      models.StatusValid,
	}, nil)

	rec := s.do(http.MethodGet, "/insurance/012345678901/validity", "")
	s.Equal(http.StatusOK, rec.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(true, resp["is_valid"])
	s.Equal(float64(74), resp["days_until_expiry"])
	s.Equal("Valid", resp["status_text"])

	rec = s.do(http.MethodGet, "/insurance/12/validity", "")
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *InsuranceHandlerSuite) TestDelete() {
	s.service.EXPECT().Delete(gomock.Any(), domain.CitizenID("012345678901")).Return(nil)
	s.syncer.EXPECT().Sync(gomock.Any(), domain.CitizenID("012345678901")).Return(&patientModels.Patient{}, nil)
	rec := s.do(http.MethodDelete, "/insurance/012345678901", "")
	s.Equal(http.StatusNoContent, rec.Code)

	s.service.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(dErrors.New(dErrors.CodeNotFound, "insurance not found"))
	rec = s.do(http.MethodDelete, "/insurance/012345678901", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *InsuranceHandlerSuite) TestList() {
	s.service.EXPECT().List(gomock.Any(), models.ListExpiringSoon, 14).Return([]*models.Insurance{card()}, nil)
	rec := s.do(http.MethodGet, "/insurance?state=expiring&days=14", "")
	s.Equal(http.StatusOK, rec.Code)
	var resp struct {
		State string `json:"state"`
		Count int    `json:"count"`
	}
	s.Require().NoError(json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&resp))
	s.Equal("expiring", resp.State)
	s.Equal(1, resp.Count)

	rec = s.do(http.MethodGet, "/insurance?state=expiring&days=-1", "")
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/insurance?state=lost", "")
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}
