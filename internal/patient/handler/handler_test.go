package handler

import (
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

	"kiosk/internal/insurancesync"
	"kiosk/internal/patient/handler/mocks"
	"kiosk/internal/patient/models"
	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/patient-mocks.go -package=mocks Service,Syncer
type PatientHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	syncer  *mocks.MockSyncer
	router  chi.Router
}

func TestPatientHandlerSuite(t *testing.T) {
	suite.Run(t, new(PatientHandlerSuite))
}

var requestTime = time.Date(2026, time.October, 18, 3, 0, 0, 0, time.UTC)

func (s *PatientHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.syncer = mocks.NewMockSyncer(ctrl)
	h := New(s.service, s.syncer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *PatientHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(requestcontext.WithTime(req.Context(), requestTime))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func patient() *models.Patient {
	return &models.Patient{
		CitizenID:   "079123456789",
		FullName:    "Vo Thi F",
		DOB:         domain.NewDay(2000, time.October, 19),
		Gender:      domain.GenderFemale,
		Ethnicity:   models.DefaultEthnicity,
		IsInsurance: true,
	}
}

func (s *PatientHandlerSuite) TestRegister() {
	s.service.EXPECT().Register(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p models.Params) (*models.Patient, error) {
			s.Equal("0912345678", p.Phone)
			return patient(), nil
		})

	rec := s.do(http.MethodPost, "/patients", `{
		"citizen_id": "079123456789",
		"full_name": "Vo Thi F",
		"dob": "2000-10-19",
		"gender": "female",
		"phone": "+84912345678"
	}`)
	s.Equal(http.StatusCreated, rec.Code)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(float64(25), resp["age"])
	s.Equal("2000-10-19", resp["dob"])

	rec = s.do(http.MethodPost, "/patients", `{"citizen_id": "079123456789", "is_insurance": true}`)
	s.Equal(http.StatusBadRequest, rec.Code, "flag is not accepted from clients")
}

func (s *PatientHandlerSuite) TestRegisterFromInsurance() {
	s.service.EXPECT().RegisterFromInsurance(gomock.Any(), domain.CitizenID("079123456789"), models.Extras{Address: "Hue"}).
		Return(patient(), nil)
	rec := s.do(http.MethodPost, "/patients/from-insurance", `{"citizen_id": "079123456789", "address": "Hue"}`)
	s.Equal(http.StatusCreated, rec.Code)
	s.Contains(rec.Body.String(), `"is_insurance":true`)
}

func (s *PatientHandlerSuite) TestUpdate() {
	s.Run("passes only supplied fields", func() {
		s.service.EXPECT().Update(gomock.Any(), domain.CitizenID("079123456789"), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ domain.CitizenID, patch models.Patch) (*models.Patient, error) {
				s.Require().NotNil(patch.Address)
				s.Equal("Hue", *patch.Address)
				s.Nil(patch.FullName)
				return patient(), nil
			})
		rec := s.do(http.MethodPatch, "/patients/079123456789", `{"address": "Hue"}`)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("citizen id is not patchable", func() {
		rec := s.do(http.MethodPatch, "/patients/079123456789", `{"citizen_id": "079123456780"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("empty patch", func() {
		rec := s.do(http.MethodPatch, "/patients/079123456789", `{}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})
}

func (s *PatientHandlerSuite) TestGetAndSync() {
	s.service.EXPECT().Get(gomock.Any(), domain.CitizenID("079123456789")).Return(nil, dErrors.New(dErrors.CodeNotFound, "patient not found"))
	rec := s.do(http.MethodGet, "/patients/079123456789", "")
	s.Equal(http.StatusNotFound, rec.Code)

	s.syncer.EXPECT().Sync(gomock.Any(), domain.CitizenID("079123456789")).Return(patient(), nil)
	rec = s.do(http.MethodPost, "/patients/079123456789/sync", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"is_insurance":true`)
}

func (s *PatientHandlerSuite) TestListWithInsurance() {
	s.service.EXPECT().ListWithValidInsurance(gomock.Any()).Return([]*models.Patient{patient()}, nil)
	rec := s.do(http.MethodGet, "/patients/with-insurance", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp []map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp, 1)
	s.Equal("079123456789", resp[0]["citizen_id"])
	s.Equal(float64(25), resp[0]["age"])

	s.service.EXPECT().ListWithValidInsurance(gomock.Any()).Return(nil, nil)
	rec = s.do(http.MethodGet, "/patients/with-insurance", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *PatientHandlerSuite) TestSyncBatch() {
	s.syncer.EXPECT().SyncBatch(gomock.Any(), []domain.CitizenID{"079123456789"}).Return(&insurancesync.Report{
		Checked: 1,
		Changed: []domain.CitizenID{"079123456789"},
		Missing: []domain.CitizenID{},
	}, nil)
	rec := s.do(http.MethodPost, "/patients/sync", `{"citizen_ids": ["079123456789"]}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"checked":1`)

	rec = s.do(http.MethodPost, "/patients/sync", `{"citizen_ids": ["bad"]}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *PatientHandlerSuite) TestSyncBatchDedupesIDs() {
	s.syncer.EXPECT().SyncBatch(gomock.Any(), []domain.CitizenID{"079123456789", "079123456780"}).Return(&insurancesync.Report{
		Checked: 2,
		Changed: []domain.CitizenID{},
		Missing: []domain.CitizenID{},
	}, nil)
	rec := s.do(http.MethodPost, "/patients/sync",
		`{"citizen_ids": [" 079123456789", "079123456780", "079123456789", ""]}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"checked":2`)
}
